package portalauth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openclinic/portalauth/jwt"
	"github.com/openclinic/portalauth/mail"
	"github.com/openclinic/portalauth/password"
)

// Engine orchestrates the portal's identity and credential lifecycle:
// registration, login, session renewal and invalidation, password reset, and
// the single-active-record saves for cards, addresses, and draft visits.
//
// An Engine holds no mutable state of its own; the credential store is the
// only synchronization point, so one Engine serves all requests.
type Engine struct {
	config       Config
	store        CredentialStore
	gateway      PaymentGateway
	mailer       mail.Sender
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	audit        *auditDispatcher
	metrics      *Metrics
	logger       *zap.Logger
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// VerifyAccess validates an access token and returns the user id it was
// issued to. The middleware calls it once per request to populate the
// context.
func (e *Engine) VerifyAccess(_ context.Context, token string) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		return "", ErrNotAuthenticated
	}
	return claims.UID, nil
}

// issueSession mints the access+refresh pair for a user. The refresh token
// is stamped with the user's current generation so a later bump revokes it.
func (e *Engine) issueSession(user *User) (TokenPair, error) {
	access, err := e.jwtManager.CreateAccess(user.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := e.jwtManager.CreateRefresh(user.ID, user.TokenGeneration)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// requireUser resolves the caller identity from ctx and loads the account.
// Operations that mutate user-owned records all start here.
func (e *Engine) requireUser(ctx context.Context) (*User, error) {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}
