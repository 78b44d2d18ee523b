package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	StatusDraft          BookingStatus = "draft"
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
	StatusFailed         BookingStatus = "failed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefundDue PaymentStatus = "refund_due"
)

type GuestDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Booking is the durable reservation record. It is mutated only through the
// lifecycle methods below; once a terminal state is reached the record is
// immutable, except confirmed→cancelled inside the cancellation window.
type Booking struct {
	ID              string
	HotelID         int64
	RoomType        string
	CheckIn         Date
	CheckOut        Date
	Rooms           int
	Guests          int
	Guest           GuestDetails
	SpecialRequests string
	Pricing         Quote
	Status          BookingStatus
	Payment         PaymentStatus
	OrderID         *string
	HoldID          string
	HoldExpiresAt   time.Time
	IdempotencyKey  string
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InventoryHold is a TTL-bounded reservation of rooms pending payment. It
// lives only in the ledger, between creation and commit or release.
type InventoryHold struct {
	ID        string
	HotelID   int64
	RoomType  string
	CheckIn   Date
	CheckOut  Date
	Rooms     int
	ExpiresAt time.Time
}

// Stay is committed occupancy backing a confirmed booking.
type Stay struct {
	HotelID  int64
	RoomType string
	CheckIn  Date
	CheckOut Date
	Rooms    int
}

func (b Booking) Stay() Stay {
	return Stay{
		HotelID:  b.HotelID,
		RoomType: b.RoomType,
		CheckIn:  b.CheckIn,
		CheckOut: b.CheckOut,
		Rooms:    b.Rooms,
	}
}

var transitions = map[BookingStatus][]BookingStatus{
	StatusDraft:          {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment: {StatusConfirmed, StatusFailed, StatusCancelled},
	StatusConfirmed:      {StatusCompleted, StatusCancelled},
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether from→to is a legal lifecycle step.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (b *Booking) transition(to BookingStatus) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	return nil
}

// MarkPendingPayment records that a gateway order exists for the booking.
func (b *Booking) MarkPendingPayment(orderID string) error {
	if err := b.transition(StatusPendingPayment); err != nil {
		return err
	}
	b.OrderID = &orderID
	return nil
}

// Confirm is legal only from pending_payment; the payment reconciler is the
// sole caller, after signature verification and inventory commit.
func (b *Booking) Confirm() error {
	if err := b.transition(StatusConfirmed); err != nil {
		return err
	}
	b.Payment = PaymentPaid
	return nil
}

func (b *Booking) Fail(reason string, refundDue bool) error {
	if err := b.transition(StatusFailed); err != nil {
		return err
	}
	b.FailureReason = reason
	if refundDue {
		b.Payment = PaymentRefundDue
	} else {
		b.Payment = PaymentFailed
	}
	return nil
}

// Cancel applies user-initiated cancellation. Pre-payment cancellation is
// always allowed; a confirmed booking can only be cancelled while check-in
// is more than cutoff away.
func (b *Booking) Cancel(now time.Time, cutoff time.Duration) error {
	if b.Status == StatusConfirmed && b.CheckIn.Time().Sub(now) <= cutoff {
		return fmt.Errorf("%w: check-in %s is within %s", ErrCancellationWindowClosed, b.CheckIn, cutoff)
	}
	return b.transition(StatusCancelled)
}

func (b *Booking) Complete() error {
	return b.transition(StatusCompleted)
}
