package portalauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegisterSuccess    = "register_success"
	auditEventRegisterExists     = "register_exists"
	auditEventRegisterUpgrade    = "register_visitor_upgrade"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventSessionRenewed     = "session_renewed"
	auditEventSessionRenewDenied = "session_renew_denied"
	auditEventTokensInvalidated  = "tokens_invalidated"
	auditEventResetRequested     = "password_reset_requested"
	auditEventResetConfirmed     = "password_reset_confirmed"
	auditEventResetDenied        = "password_reset_denied"
	auditEventCardSaved          = "card_saved"
	auditEventCardDeclined       = "card_declined"
	auditEventAddressSaved       = "address_saved"
	auditEventVisitDraftSaved    = "visit_draft_saved"
	auditEventRecordSaveRejected = "record_save_rejected"
)

type auditErrorCode string

const (
	auditErrNotAuthenticated   auditErrorCode = "not_authenticated"
	auditErrInvalidCredentials auditErrorCode = "invalid_credentials"
	auditErrUserNotFound       auditErrorCode = "user_not_found"
	auditErrAlreadyRegistered  auditErrorCode = "already_registered"
	auditErrPasswordMismatch   auditErrorCode = "password_mismatch"
	auditErrInvalidToken       auditErrorCode = "invalid_token"
	auditErrPaymentDeclined    auditErrorCode = "payment_declined"
	auditErrDuplicateEmail     auditErrorCode = "duplicate_email"
	auditErrInternal           auditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := errorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func errorCode(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAlreadyRegistered):
		return auditErrAlreadyRegistered
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, ErrResetTokenInvalid), errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrPaymentDeclined):
		return auditErrPaymentDeclined
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicateEmail
	default:
		return auditErrInternal
	}
}
