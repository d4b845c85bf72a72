package portalauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates a PATIENT account for the given email, or completes one.
// Three outcomes:
//
//   - The email already belongs to a PATIENT: no error, but the result
//     carries MessageExists and no tokens. The caller decides how to word
//     that to the visitor.
//   - The email belongs to a VISITOR placeholder left behind by an anonymous
//     intake flow: the placeholder is completed in place with the submitted
//     profile and password and promoted to PATIENT, keeping its id and every
//     record already attached to it.
//   - The email is unknown: a fresh PATIENT account is created.
//
// Both successful paths return a signed session so the user is logged in
// immediately after registering.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := e.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == RolePatient {
			e.metricInc(MetricRegisterExists)
			e.emitAudit(ctx, auditEventRegisterExists, false, existing.ID, ErrAlreadyRegistered, func() map[string]string {
				return map[string]string{"email": email}
			})
			return &RegisterResult{Message: MessageExists}, nil
		}
		return e.upgradeVisitor(ctx, existing, in)
	case errors.Is(err, ErrUserNotFound):
		return e.createPatient(ctx, email, in)
	default:
		return nil, fmt.Errorf("register lookup: %w", err)
	}
}

func (e *Engine) createPatient(ctx context.Context, email string, in RegisterInput) (*RegisterResult, error) {
	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = RolePatient
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Telephone:    in.Telephone,
	}

	created, err := e.store.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a race with a concurrent registration for the same email.
			e.metricInc(MetricRegisterExists)
			return &RegisterResult{Message: MessageExists}, nil
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := e.issueSession(created)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, created.ID, nil, nil)
	e.logger.Info("patient registered", zap.String("user_id", created.ID))

	return &RegisterResult{Message: MessageOK, User: created, Tokens: &tokens}, nil
}

// upgradeVisitor completes a VISITOR placeholder in place. The id stays the
// same so cards, addresses, and draft visits created before registration
// remain attached.
func (e *Engine) upgradeVisitor(ctx context.Context, user *User, in RegisterInput) (*RegisterResult, error) {
	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = hash
	user.Role = RolePatient
	user.FirstName = in.FirstName
	user.LastName = in.LastName
	user.Telephone = in.Telephone

	updated, err := e.store.UpdateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("promote visitor: %w", err)
	}

	tokens, err := e.issueSession(updated)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterUpgrade)
	e.emitAudit(ctx, auditEventRegisterUpgrade, true, updated.ID, nil, nil)
	e.logger.Info("visitor promoted to patient", zap.String("user_id", updated.ID))

	return &RegisterResult{Message: MessageOK, User: updated, Tokens: &tokens}, nil
}

// Login verifies the email/password pair and issues a session. Unknown
// email and wrong password are indistinguishable to the caller; both return
// [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, email, pw string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login lookup: %w", err)
	}

	ok, err := e.passwordHash.Verify(pw, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	e.maybeUpgradeHash(ctx, user, pw)

	tokens, err := e.issueSession(user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, nil)

	return &LoginResult{User: user, Tokens: tokens}, nil
}

// maybeUpgradeHash rehashes the password when the stored hash was produced
// with weaker parameters than the current configuration. Login has already
// succeeded at this point, so failures are logged and swallowed.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user *User, pw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}

	needs, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}

	user.PasswordHash = hash
	if _, err := e.store.UpdateUser(ctx, user); err != nil {
		e.logger.Warn("password rehash not persisted", zap.String("user_id", user.ID), zap.Error(err))
	}
}
