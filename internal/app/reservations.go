package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hotelbook/internal/adapters/observability"
	"hotelbook/internal/clock"
	"hotelbook/internal/domain"
)

// ReservationService is the single client-facing entry point of the booking
// workflow. It validates the request, reserves inventory through the ledger,
// creates the draft booking with its frozen pricing snapshot, requests the
// payment order, and handles cancellation and the reconciliation sweep.
type ReservationService struct {
	repo     domain.BookingRepository
	catalog  domain.CatalogRepository
	ledger   domain.Ledger
	payments *PaymentService
	clk      clock.Clock

	taxRateBps   int
	holdTTL      time.Duration
	cancelCutoff time.Duration
}

func NewReservationService(
	repo domain.BookingRepository,
	catalog domain.CatalogRepository,
	ledger domain.Ledger,
	payments *PaymentService,
	clk clock.Clock,
	taxRateBps int,
	holdTTL, cancelCutoff time.Duration,
) *ReservationService {
	return &ReservationService{
		repo:         repo,
		catalog:      catalog,
		ledger:       ledger,
		payments:     payments,
		clk:          clk,
		taxRateBps:   taxRateBps,
		holdTTL:      holdTTL,
		cancelCutoff: cancelCutoff,
	}
}

// maxStayNights caps the date range a single request may cover. The ledger
// walks the range night by night under a shard lock, so unbounded ranges are
// rejected up front.
const maxStayNights = 90

type CreateBookingInput struct {
	HotelID         int64
	RoomType        string
	CheckIn         domain.Date
	CheckOut        domain.Date
	Rooms           int
	Guests          int
	Guest           domain.GuestDetails
	SpecialRequests string
	IdempotencyKey  string
}

// CreateBooking runs the availability → hold → booking → payment-order
// sequence. A failed hold creates no booking record. A retried request with
// the same idempotency key returns the original booking instead of creating
// a duplicate booking/hold pair. On ErrGatewayUnavailable the draft booking
// and its hold are returned anyway; order creation can be retried while the
// hold lives.
func (s *ReservationService) CreateBooking(ctx context.Context, in CreateBookingInput) (domain.Booking, *OrderDetails, error) {
	if in.IdempotencyKey == "" {
		return domain.Booking{}, nil, fmt.Errorf("%w: idempotency key required", domain.ErrInvalidRequest)
	}
	if existing, err := s.repo.FindBookingByIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
		return domain.Booking{}, nil, err
	} else if existing != nil {
		return *existing, s.payments.orderDetails(*existing), nil
	}

	now := s.clk.Now()
	nights := domain.DaysBetween(in.CheckIn, in.CheckOut)
	if nights <= 0 {
		return domain.Booking{}, nil, fmt.Errorf("%w: check-out must be after check-in", domain.ErrInvalidRequest)
	}
	if nights > maxStayNights {
		return domain.Booking{}, nil, fmt.Errorf("%w: stay exceeds %d nights", domain.ErrInvalidRequest, maxStayNights)
	}
	if in.CheckIn.Before(domain.DateOf(now)) {
		return domain.Booking{}, nil, fmt.Errorf("%w: check-in %s is in the past", domain.ErrInvalidRequest, in.CheckIn)
	}
	if in.Rooms < 1 {
		return domain.Booking{}, nil, fmt.Errorf("%w: rooms must be at least 1", domain.ErrInvalidRequest)
	}

	rt, err := s.catalog.GetRoomType(ctx, in.HotelID, in.RoomType)
	if err != nil {
		return domain.Booking{}, nil, err
	}
	if in.Guests < 1 || in.Guests > in.Rooms*rt.CapacityPerRoom {
		return domain.Booking{}, nil, fmt.Errorf("%w: %d guests exceed capacity of %d rooms",
			domain.ErrInvalidRequest, in.Guests, in.Rooms)
	}

	hold, err := s.ledger.TryHold(rt, in.CheckIn, in.CheckOut, in.Rooms, s.holdTTL)
	if err != nil {
		return domain.Booking{}, nil, err
	}

	quote, err := domain.PriceStay(rt.RatePerNight, in.Rooms, in.CheckIn, in.CheckOut, s.taxRateBps)
	if err != nil {
		s.ledger.Release(hold.ID)
		return domain.Booking{}, nil, err
	}

	b := domain.Booking{
		ID:              uuid.NewString(),
		HotelID:         in.HotelID,
		RoomType:        rt.Name,
		CheckIn:         in.CheckIn,
		CheckOut:        in.CheckOut,
		Rooms:           in.Rooms,
		Guests:          in.Guests,
		Guest:           in.Guest,
		SpecialRequests: in.SpecialRequests,
		Pricing:         quote,
		Status:          domain.StatusDraft,
		Payment:         domain.PaymentPending,
		HoldID:          hold.ID,
		HoldExpiresAt:   hold.ExpiresAt,
		IdempotencyKey:  in.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		s.ledger.Release(hold.ID)
		if errors.Is(err, domain.ErrIdempotencyConflict) {
			// a concurrent retry with the same key won the insert
			if existing, ferr := s.repo.FindBookingByIdempotencyKey(ctx, in.IdempotencyKey); ferr == nil && existing != nil {
				return *existing, s.payments.orderDetails(*existing), nil
			}
		}
		return domain.Booking{}, nil, err
	}
	_ = s.repo.AppendEvent(ctx, domain.BookingEvent{BookingID: b.ID, To: domain.StatusDraft, Note: "created", At: now})
	observability.ObserveBooking("created")

	order, err := s.payments.CreateOrder(ctx, b.ID)
	if err != nil {
		// the draft booking and its hold survive a gateway outage; the
		// order can be retried until the hold expires
		return b, nil, err
	}
	b.Status = domain.StatusPendingPayment
	b.OrderID = &order.OrderID
	return b, &order, nil
}

// Cancel applies user-initiated cancellation. Pre-payment it releases the
// hold; post-payment it is allowed only outside the cutoff window and frees
// the committed rooms. A cancellation racing a payment callback loses with
// ErrInvalidTransition if the callback observed the booking first.
func (s *ReservationService) Cancel(ctx context.Context, bookingID string) (domain.Booking, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	prev := b.Status
	if err := b.Cancel(s.clk.Now(), s.cancelCutoff); err != nil {
		return domain.Booking{}, err
	}
	if err := s.repo.MarkCancelled(ctx, bookingID, prev); err != nil {
		return domain.Booking{}, err
	}

	switch prev {
	case domain.StatusDraft, domain.StatusPendingPayment:
		s.ledger.Release(b.HoldID)
	case domain.StatusConfirmed:
		s.ledger.ReleaseStay(b.Stay())
	}
	_ = s.repo.AppendEvent(ctx, domain.BookingEvent{
		BookingID: bookingID,
		From:      prev,
		To:        domain.StatusCancelled,
		Note:      "user cancellation",
		At:        s.clk.Now(),
	})
	observability.ObserveBooking("cancelled")
	return b, nil
}

// SweepStale is the reconciliation sweep: it drops expired ledger entries
// and retires bookings whose hold lapsed without progress. A pending_payment
// booking whose callback never arrived is failed; a draft stranded by a
// gateway outage is cancelled. Inventory for both was already freed by lazy
// expiry, so Release here is a no-op at worst. Safe to run repeatedly.
func (s *ReservationService) SweepStale(ctx context.Context) (int, error) {
	s.ledger.Sweep()

	stale, err := s.repo.ListStalePending(ctx, s.clk.Now(), 100)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, b := range stale {
		var to domain.BookingStatus
		var note string
		var err error
		if b.Status == domain.StatusDraft {
			to, note = domain.StatusCancelled, "abandoned draft"
			err = s.repo.MarkCancelled(ctx, b.ID, domain.StatusDraft)
		} else {
			to, note = domain.StatusFailed, "payment timeout"
			err = s.repo.MarkFailed(ctx, b.ID, note, false)
		}
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue // a late callback or cancellation got there first
			}
			return swept, err
		}
		s.ledger.Release(b.HoldID)
		_ = s.repo.AppendEvent(ctx, domain.BookingEvent{
			BookingID: b.ID,
			From:      b.Status,
			To:        to,
			Note:      note,
			At:        s.clk.Now(),
		})
		observability.ObserveBooking(string(to))
		swept++
	}
	return swept, nil
}

// RunSweeper runs SweepStale on a fixed interval until ctx is cancelled.
func (s *ReservationService) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.SweepStale(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("reconciliation sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("failed", n).Msg("reconciliation sweep")
			}
		}
	}
}
