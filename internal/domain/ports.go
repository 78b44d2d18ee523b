package domain

import (
	"context"
	"time"
)

type BookingRepository interface {
	// CreateBooking inserts a draft booking; a duplicate idempotency key
	// fails with ErrIdempotencyConflict.
	CreateBooking(ctx context.Context, b Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	GetBookingByOrderID(ctx context.Context, orderID string) (Booking, error)
	FindBookingByIdempotencyKey(ctx context.Context, key string) (*Booking, error)
	ListBookingsByEmail(ctx context.Context, email string, status *BookingStatus, limit int) ([]Booking, error)
	ListConfirmedStays(ctx context.Context) ([]Stay, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]Booking, error)

	// Conditional transitions. Each matches on the expected current status
	// and returns ErrInvalidTransition when another writer got there first;
	// this is what serializes a payment callback against a racing
	// cancellation or sweep.
	MarkPendingPayment(ctx context.Context, id, orderID string, payment PaymentStatus) error
	MarkConfirmed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string, refundDue bool) error
	MarkCancelled(ctx context.Context, id string, from BookingStatus) error
	FlagRefund(ctx context.Context, id string) error

	AppendEvent(ctx context.Context, ev BookingEvent) error
}

// BookingEvent is one row of the append-only status history kept for audit.
type BookingEvent struct {
	BookingID string
	From      BookingStatus
	To        BookingStatus
	Note      string
	At        time.Time
}

type CatalogRepository interface {
	UpsertHotel(ctx context.Context, h Hotel) error
	UpsertRoomType(ctx context.Context, rt RoomType) error
	GetRoomType(ctx context.Context, hotelID int64, name string) (RoomType, error)
}

// Ledger is the single source of truth for remaining capacity and the only
// component allowed to mutate room counts.
type Ledger interface {
	// CheckAvailability is advisory; TryHold re-verifies atomically.
	CheckAvailability(rt RoomType, checkIn, checkOut Date) int
	TryHold(rt RoomType, checkIn, checkOut Date, rooms int, ttl time.Duration) (InventoryHold, error)
	// Commit converts a hold into committed occupancy. Idempotent; returns
	// ErrInventoryExpired if the hold lapsed or was released.
	Commit(holdID string) error
	// Release frees held capacity. Idempotent, unknown ids are a no-op.
	Release(holdID string)
	// ReleaseStay frees committed occupancy after a confirmed booking is
	// cancelled.
	ReleaseStay(s Stay)
	// Sweep drops expired holds and past bookkeeping, returning the number
	// of entries removed. Optional for correctness; expiry is also lazy.
	Sweep() int
}

type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, receipt string, amount int64, currency string) (GatewayOrder, error)
	// KeyID is the public key identifier handed to the client checkout.
	KeyID() string
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
