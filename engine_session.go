package portalauth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// RenewSession exchanges a refresh token for a fresh access+refresh pair.
// The token must parse under the refresh secret, the user must still exist,
// and the generation stamped into the token must match the account's current
// counter. Every failure collapses to [ErrRefreshInvalid] so a caller cannot
// probe which check tripped.
func (e *Engine) RenewSession(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRenewFailure)
		e.emitAudit(ctx, auditEventSessionRenewDenied, false, "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	user, err := e.store.GetUserByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRenewFailure)
			e.emitAudit(ctx, auditEventSessionRenewDenied, false, claims.UID, ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("renew lookup: %w", err)
	}

	if claims.Generation != user.TokenGeneration {
		e.metricInc(MetricRenewFailure)
		e.emitAudit(ctx, auditEventSessionRenewDenied, false, user.ID, ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "stale_generation"}
		})
		return nil, ErrRefreshInvalid
	}

	tokens, err := e.issueSession(user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRenewSuccess)
	e.emitAudit(ctx, auditEventSessionRenewed, true, user.ID, nil, nil)

	return &LoginResult{User: user, Tokens: tokens}, nil
}

// InvalidateTokens bumps the caller's token generation, revoking every
// refresh token issued before the call. Outstanding access tokens keep
// working until they expire; the short access lifetime bounds that window.
//
// Returns false without error when the authenticated account no longer
// exists, so a logout-everywhere button stays idempotent.
func (e *Engine) InvalidateTokens(ctx context.Context) (bool, error) {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		return false, ErrNotAuthenticated
	}

	gen, err := e.store.BumpTokenGeneration(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("bump token generation: %w", err)
	}

	e.metricInc(MetricTokensInvalidated)
	e.emitAudit(ctx, auditEventTokensInvalidated, true, userID, nil, nil)
	e.logger.Info("refresh tokens invalidated",
		zap.String("user_id", userID),
		zap.Uint32("generation", gen))

	return true, nil
}
