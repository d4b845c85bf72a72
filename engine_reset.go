package portalauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openclinic/portalauth/internal"
	"github.com/openclinic/portalauth/mail"
)

// RequestReset starts the password-reset flow: it mints a random reset
// token, stores it on the account with an expiry, and mails the reset link.
// Requesting again before the first token is used simply replaces it; only
// the latest token works.
//
// Unknown emails return [ErrUserNotFound]. A mail delivery failure is logged
// but not surfaced, since the token is already committed and the user can
// retry.
func (e *Engine) RequestReset(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventResetDenied, false, "", ErrUserNotFound, func() map[string]string {
				return map[string]string{"email": email}
			})
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("reset lookup: %w", err)
	}

	token, err := internal.NewResetToken(e.config.Reset.TokenBytes)
	if err != nil {
		return false, fmt.Errorf("mint reset token: %w", err)
	}

	user.ResetToken = token
	user.ResetTokenExpiry = time.Now().Add(e.config.Reset.TTL)
	if _, err := e.store.UpdateUser(ctx, user); err != nil {
		return false, fmt.Errorf("store reset token: %w", err)
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventResetRequested, true, user.ID, nil, nil)

	msg := mail.ResetMessage(user.Email, e.config.Mail.From, user.FirstName, e.resetURL(token))
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.logger.Error("reset mail not delivered",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}

	return true, nil
}

func (e *Engine) resetURL(token string) string {
	return strings.TrimSuffix(e.config.Reset.BaseURL, "/") +
		"/reset?resetToken=" + url.QueryEscape(token)
}

// ResetPassword completes the flow. The two password fields must match, the
// token must be the account's current one, and the token must not have
// expired. An unknown token and an expired token are indistinguishable to
// the caller; both return [ErrResetTokenInvalid].
//
// On success the token is cleared, making it single use, and a fresh session
// is issued so the user lands logged in.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword, confirm string) (*LoginResult, error) {
	if newPassword != confirm {
		return nil, ErrPasswordMismatch
	}
	if token == "" {
		return nil, ErrResetTokenInvalid
	}

	user, err := e.store.GetUserByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricResetConfirmFailure)
			e.emitAudit(ctx, auditEventResetDenied, false, "", ErrResetTokenInvalid, nil)
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("reset token lookup: %w", err)
	}

	if time.Now().After(user.ResetTokenExpiry) {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventResetDenied, false, user.ID, ErrResetTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
		return nil, ErrResetTokenInvalid
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetTokenExpiry = time.Time{}

	updated, err := e.store.UpdateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("store new password: %w", err)
	}

	tokens, err := e.issueSession(updated)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventResetConfirmed, true, updated.ID, nil, nil)
	e.logger.Info("password reset completed", zap.String("user_id", updated.ID))

	return &LoginResult{User: updated, Tokens: tokens}, nil
}
