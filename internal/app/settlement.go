package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Garima-Shrestha/novella-sub000/internal/epay"
	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

// InitiateOutcome is returned when the gateway accepts a checkout. No
// entitlement exists at this point.
type InitiateOutcome struct {
	Pidx       string    `json:"pidx"`
	PaymentURL string    `json:"paymentUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SettlementOutcome reports the current state of a payment after
// verification. EntitlementID is set once the payment has settled.
type SettlementOutcome struct {
	Status        domain.PaymentStatus `json:"status"`
	EntitlementID string               `json:"entitlementId,omitempty"`
}

// InitiatePurchase opens a checkout for a permanent purchase of the book.
// Nothing is persisted unless the gateway accepts the initiate call.
func (a *App) InitiatePurchase(ctx context.Context, userID, bookID string, amount int64, orderID, orderName string, customer *epay.CustomerInfo) (InitiateOutcome, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(bookID) == "" {
		return InitiateOutcome{}, validationf("userId and bookId are required")
	}
	if amount <= 0 {
		return InitiateOutcome{}, validationf("amount must be positive")
	}
	if strings.TrimSpace(orderName) == "" {
		return InitiateOutcome{}, validationf("orderName is required")
	}
	if _, ok, err := a.books.GetBook(bookID); err != nil {
		return InitiateOutcome{}, err
	} else if !ok {
		return InitiateOutcome{}, notFoundf("book %s not found", bookID)
	}
	now := a.now().UTC()
	if active, ok, err := a.entitlements.GetActive(userID, bookID); err != nil {
		return InitiateOutcome{}, err
	} else if ok && active.ValidAt(now) {
		return InitiateOutcome{}, conflictf("user already has access %s", accessUntil(active))
	}
	if !a.gateway.Configured() {
		return InitiateOutcome{}, unavailablef("payment gateway not configured")
	}

	if strings.TrimSpace(orderID) == "" {
		orderID = "order-" + uuid.NewString()
	}
	result, err := a.gateway.Initiate(ctx, epay.InitiateRequest{
		Amount:    amount,
		OrderID:   orderID,
		OrderName: orderName,
		Customer:  customer,
	})
	if err != nil {
		return InitiateOutcome{}, passthroughGatewayError(err)
	}

	attempt := domain.PaymentAttempt{
		ID:              store.NewID(),
		UserID:          userID,
		BookID:          bookID,
		Pidx:            result.Pidx,
		Amount:          amount,
		OrderID:         orderID,
		OrderName:       orderName,
		Status:          domain.PaymentInitiated,
		InitiatePayload: result.Raw,
		IsProcessed:     false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.payments.CreatePayment(attempt); err != nil {
		return InitiateOutcome{}, err
	}
	return InitiateOutcome{
		Pidx:       result.Pidx,
		PaymentURL: result.PaymentURL,
		ExpiresAt:  result.ExpiresAt,
	}, nil
}

// VerifyPurchase re-checks a payment with the gateway and, when the gateway
// reports Completed, settles it into a permanent entitlement exactly once.
//
// Idempotency is layered: the in-record isProcessed flag short-circuits
// sequential repeats, and the entitlement store's uniqueness constraint plus
// re-read reconciliation absorbs concurrent races. Safe to call repeatedly;
// the stored status is refreshed on every successful lookup.
func (a *App) VerifyPurchase(ctx context.Context, pidx, requestingUserID string) (SettlementOutcome, error) {
	if strings.TrimSpace(pidx) == "" {
		return SettlementOutcome{}, validationf("pidx is required")
	}
	payment, ok, err := a.payments.GetByPidx(pidx)
	if err != nil {
		return SettlementOutcome{}, err
	}
	if !ok {
		return SettlementOutcome{}, notFoundf("payment %s not found", pidx)
	}
	if payment.UserID != requestingUserID {
		return SettlementOutcome{}, forbiddenf("payment belongs to another user")
	}

	result, err := a.gateway.Lookup(ctx, pidx)
	if err != nil {
		// No writes on gateway failure.
		return SettlementOutcome{}, passthroughGatewayError(err)
	}

	// Refresh stored state unconditionally so repeated polling always
	// reflects the freshest upstream view, whatever happens next.
	status := normalizeGatewayStatus(result.Status)
	if err := a.payments.UpdateByPidx(pidx, store.PaymentUpdate{
		Status:        &status,
		TransactionID: &result.TransactionID,
		LookupPayload: result.Raw,
	}); err != nil {
		return SettlementOutcome{}, err
	}

	if status != domain.PaymentCompleted {
		return SettlementOutcome{Status: status}, nil
	}
	if payment.IsProcessed {
		return SettlementOutcome{Status: domain.PaymentCompleted, EntitlementID: payment.EntitlementID}, nil
	}

	entitlementID, err := a.settle(payment)
	if err != nil {
		return SettlementOutcome{}, err
	}
	now := a.now().UTC()
	processed := true
	if err := a.payments.UpdateByPidx(pidx, store.PaymentUpdate{
		IsProcessed:   &processed,
		ProcessedAt:   &now,
		EntitlementID: &entitlementID,
	}); err != nil {
		return SettlementOutcome{}, err
	}
	return SettlementOutcome{Status: domain.PaymentCompleted, EntitlementID: entitlementID}, nil
}

// settle converts a completed payment into a permanent entitlement and
// returns its id. A missing content pointer aborts with NotFound, leaving the
// payment Completed but unprocessed so a later retry can still succeed.
func (a *App) settle(payment domain.PaymentAttempt) (string, error) {
	pointer, ok, err := a.catalog.ActiveContent(payment.BookID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", notFoundf("content not published for book %s", payment.BookID)
	}

	now := a.now().UTC()
	if latest, ok, err := a.entitlements.GetLatest(payment.UserID, payment.BookID); err != nil {
		return "", err
	} else if ok {
		if latest.ValidAt(now) {
			// Already holds access; link the payment to it.
			return latest.ID, nil
		}
		renewed, err := a.renew(latest.ID, now, nil, pointer.PdfURL)
		if err != nil {
			return "", err
		}
		return renewed.ID, nil
	}

	entitlement := domain.Entitlement{
		ID:        store.NewID(),
		UserID:    payment.UserID,
		BookID:    payment.BookID,
		RentedAt:  now,
		ExpiresAt: nil, // purchases are permanent, unlike grants and rentals
		IsActive:  true,
		PdfURL:    pointer.PdfURL,
		Bookmarks: []domain.Bookmark{},
		Quotes:    []domain.Quote{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = a.entitlements.Create(entitlement)
	if err == nil {
		return entitlement.ID, nil
	}
	if !errors.Is(err, store.ErrDuplicateEntitlement) {
		return "", err
	}

	// A concurrent settlement won the insert. Adopt its row.
	if active, ok, err := a.entitlements.GetActive(payment.UserID, payment.BookID); err != nil {
		return "", err
	} else if ok {
		return active.ID, nil
	}
	latest, ok, err := a.entitlements.GetLatest(payment.UserID, payment.BookID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", conflictf("conflicting entitlement state for payment %s", payment.Pidx)
	}
	renewed, err := a.renew(latest.ID, now, nil, pointer.PdfURL)
	if err != nil {
		return "", err
	}
	return renewed.ID, nil
}

// normalizeGatewayStatus maps upstream status strings onto the ledger's
// status set; unknown strings pass through untouched (the raw payload is
// retained either way).
func normalizeGatewayStatus(s string) domain.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed":
		return domain.PaymentCompleted
	case "pending":
		return domain.PaymentPending
	case "initiated":
		return domain.PaymentInitiated
	case "expired":
		return domain.PaymentExpired
	case "failed":
		return domain.PaymentFailed
	case "canceled", "user canceled":
		return domain.PaymentCanceled
	case "refunded":
		return domain.PaymentRefunded
	case "partially refunded":
		return domain.PaymentPartiallyRefunded
	default:
		return domain.PaymentStatus(strings.TrimSpace(s))
	}
}

func passthroughGatewayError(err error) error {
	var apiErr *epay.APIError
	if errors.As(err, &apiErr) {
		return gatewayError(apiErr.Status, apiErr.Message)
	}
	return gatewayError(0, err.Error())
}
