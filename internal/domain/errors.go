package domain

import "errors"

var (
	// ErrInvalidRequest covers malformed or contradictory input; the caller
	// must fix the request before retrying.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInsufficientInventory means no rooms are left for the requested
	// window. Retrying with the same parameters will not help.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrGatewayUnavailable is a transient payment-gateway failure; the
	// order creation is safe to retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrSignatureMismatch rejects a payment callback whose signature does
	// not verify. The booking is left untouched so a corrected retry can
	// still succeed.
	ErrSignatureMismatch = errors.New("payment signature mismatch")

	// ErrInventoryExpired means the hold lapsed before payment completed.
	// The booking fails and any captured payment is flagged for refund.
	ErrInventoryExpired = errors.New("inventory hold expired")

	// ErrCancellationWindowClosed rejects cancellation of a confirmed
	// booking inside the cutoff window before check-in.
	ErrCancellationWindowClosed = errors.New("cancellation window closed")

	// ErrInvalidTransition is an illegal booking lifecycle transition,
	// usually the losing side of a race.
	ErrInvalidTransition = errors.New("invalid booking transition")

	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
