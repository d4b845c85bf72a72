package portalauth

import (
	"context"
	"errors"
	"fmt"
)

// saveActive runs the shared orchestration for the single-active-record
// saves: resolve the caller, run the store swap, and account for the result.
// The swap itself is a single atomic store operation, so two concurrent
// saves serialize there rather than here.
func saveActive[T any](
	e *Engine,
	ctx context.Context,
	okEvent string,
	okMetric MetricID,
	swap func(ctx context.Context, userID string) (*T, error),
) (*T, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		e.emitAudit(ctx, auditEventRecordSaveRejected, false, UserIDFromContext(ctx), err, nil)
		return nil, err
	}

	record, err := swap(ctx, user.ID)
	if err != nil {
		e.emitAudit(ctx, auditEventRecordSaveRejected, false, user.ID, err, nil)
		return nil, err
	}

	e.metricInc(okMetric)
	e.emitAudit(ctx, okEvent, true, user.ID, nil, nil)
	return record, nil
}

// SaveCard tokenizes the submitted card through the payment gateway and
// stores the result as the caller's single active card. Any previously
// active card is deactivated in the same store operation. A gateway decline
// surfaces as [ErrPaymentDeclined] and writes nothing.
func (e *Engine) SaveCard(ctx context.Context, in CardInput) (*CreditCard, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		e.emitAudit(ctx, auditEventRecordSaveRejected, false, UserIDFromContext(ctx), err, nil)
		return nil, err
	}

	if e.gateway == nil {
		return nil, ErrEngineNotReady
	}

	tokenized, err := e.gateway.Tokenize(ctx, in)
	if err != nil {
		if errors.Is(err, ErrPaymentDeclined) {
			e.metricInc(MetricCardDeclined)
			e.emitAudit(ctx, auditEventCardDeclined, false, user.ID, err, nil)
			return nil, ErrPaymentDeclined
		}
		return nil, fmt.Errorf("tokenize card: %w", err)
	}

	card := CreditCard{
		UserID:   user.ID,
		CCType:   tokenized.Type,
		CCToken:  tokenized.Token,
		CCNumber: tokenized.MaskedNumber,
		CCExpire: in.Expiration,
		Active:   true,
	}

	saved, err := e.store.SwapActiveCard(ctx, user.ID, card)
	if err != nil {
		e.emitAudit(ctx, auditEventRecordSaveRejected, false, user.ID, err, nil)
		return nil, fmt.Errorf("store card: %w", err)
	}

	e.metricInc(MetricCardSaved)
	e.emitAudit(ctx, auditEventCardSaved, true, user.ID, nil, nil)
	return saved, nil
}

// SaveAddress stores the submitted address as the caller's single active
// one. If the caller already has an address with identical content the
// existing row is reactivated instead of duplicated.
func (e *Engine) SaveAddress(ctx context.Context, in AddressInput) (*Address, error) {
	return saveActive[Address](e, ctx, auditEventAddressSaved, MetricAddressSaved,
		func(ctx context.Context, userID string) (*Address, error) {
			return e.store.SwapActiveAddress(ctx, userID, Address{
				UserID:     userID,
				AddressOne: in.AddressOne,
				AddressTwo: in.AddressTwo,
				City:       in.City,
				State:      in.State,
				Zip:        in.Zip,
				Active:     true,
			})
		})
}

// SaveTemporaryVisit upserts the caller's draft visit for the given visit
// type. Each (user, type) pair holds at most one TEMPORARY visit; re-saving
// updates it in place.
func (e *Engine) SaveTemporaryVisit(ctx context.Context, in VisitInput) (*Visit, error) {
	return saveActive[Visit](e, ctx, auditEventVisitDraftSaved, MetricVisitUpserted,
		func(ctx context.Context, userID string) (*Visit, error) {
			return e.store.UpsertTemporaryVisit(ctx, userID, Visit{
				UserID:        userID,
				Type:          in.Type,
				Status:        VisitTemporary,
				Questionnaire: in.Questionnaire,
				AddressOne:    in.AddressOne,
				AddressTwo:    in.AddressTwo,
				City:          in.City,
				State:         in.State,
				Zip:           in.Zip,
				Telephone:     in.Telephone,
			})
		})
}

// Cards lists the caller's stored cards, superseded ones included. The
// active one is the row with Active set.
func (e *Engine) Cards(ctx context.Context) ([]CreditCard, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return e.store.CardsByUser(ctx, user.ID)
}

// Addresses lists the caller's stored addresses, superseded ones included.
func (e *Engine) Addresses(ctx context.Context) ([]Address, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return e.store.AddressesByUser(ctx, user.ID)
}

// Visits lists the caller's visits of every status.
func (e *Engine) Visits(ctx context.Context) ([]Visit, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return e.store.VisitsByUser(ctx, user.ID)
}
