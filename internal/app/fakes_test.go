package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hotelbook/internal/domain"
)

// ---- in-memory repository ----

// memRepo mirrors the conditional-update semantics of the MySQL repository:
// every Mark* checks the expected current status and fails with
// ErrInvalidTransition when another writer got there first.
type memRepo struct {
	mu       sync.Mutex
	bookings map[string]domain.Booking
	rooms    map[string]domain.RoomType
	events   []domain.BookingEvent
}

func newMemRepo(rts ...domain.RoomType) *memRepo {
	r := &memRepo{
		bookings: map[string]domain.Booking{},
		rooms:    map[string]domain.RoomType{},
	}
	for _, rt := range rts {
		r.rooms[fmt.Sprintf("%d|%s", rt.HotelID, rt.Name)] = rt
	}
	return r
}

func (r *memRepo) CreateBooking(ctx context.Context, b domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.bookings {
		if ex.IdempotencyKey == b.IdempotencyKey {
			return domain.ErrIdempotencyConflict
		}
	}
	r.bookings[b.ID] = b
	return nil
}

func (r *memRepo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (r *memRepo) GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.OrderID != nil && *b.OrderID == orderID {
			return b, nil
		}
	}
	return domain.Booking{}, domain.ErrNotFound
}

func (r *memRepo) FindBookingByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.IdempotencyKey == key {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ListBookingsByEmail(ctx context.Context, email string, status *domain.BookingStatus, limit int) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.Guest.Email != email {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		out = append(out, b)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) ListConfirmedStays(ctx context.Context) ([]domain.Stay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Stay
	for _, b := range r.bookings {
		if b.Status == domain.StatusConfirmed {
			out = append(out, b.Stay())
		}
	}
	return out, nil
}

func (r *memRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		stale := b.Status == domain.StatusDraft || b.Status == domain.StatusPendingPayment
		if stale && b.HoldExpiresAt.Before(before) {
			out = append(out, b)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) mutate(id string, from domain.BookingStatus, fn func(*domain.Booking)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != from {
		return domain.ErrInvalidTransition
	}
	fn(&b)
	r.bookings[id] = b
	return nil
}

func (r *memRepo) MarkPendingPayment(ctx context.Context, id, orderID string, payment domain.PaymentStatus) error {
	return r.mutate(id, domain.StatusDraft, func(b *domain.Booking) {
		b.Status = domain.StatusPendingPayment
		b.OrderID = &orderID
		b.Payment = payment
	})
}

func (r *memRepo) MarkConfirmed(ctx context.Context, id string) error {
	return r.mutate(id, domain.StatusPendingPayment, func(b *domain.Booking) {
		b.Status = domain.StatusConfirmed
		b.Payment = domain.PaymentPaid
	})
}

func (r *memRepo) MarkFailed(ctx context.Context, id, reason string, refundDue bool) error {
	return r.mutate(id, domain.StatusPendingPayment, func(b *domain.Booking) {
		b.Status = domain.StatusFailed
		b.FailureReason = reason
		if refundDue {
			b.Payment = domain.PaymentRefundDue
		} else {
			b.Payment = domain.PaymentFailed
		}
	})
}

func (r *memRepo) MarkCancelled(ctx context.Context, id string, from domain.BookingStatus) error {
	return r.mutate(id, from, func(b *domain.Booking) {
		b.Status = domain.StatusCancelled
	})
}

func (r *memRepo) FlagRefund(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Payment = domain.PaymentRefundDue
	r.bookings[id] = b
	return nil
}

func (r *memRepo) AppendEvent(ctx context.Context, ev domain.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) UpsertHotel(ctx context.Context, h domain.Hotel) error { return nil }

func (r *memRepo) UpsertRoomType(ctx context.Context, rt domain.RoomType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[fmt.Sprintf("%d|%s", rt.HotelID, rt.Name)] = rt
	return nil
}

func (r *memRepo) GetRoomType(ctx context.Context, hotelID int64, name string) (domain.RoomType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rooms[fmt.Sprintf("%d|%s", hotelID, name)]
	if !ok {
		return domain.RoomType{}, domain.ErrNotFound
	}
	return rt, nil
}

// staleOrderReadRepo hands out one armed snapshot on the next
// GetBookingByOrderID, emulating a callback handler that read the booking
// before a concurrent writer moved it on.
type staleOrderReadRepo struct {
	*memRepo
	staleMu sync.Mutex
	stale   *domain.Booking
}

func (r *staleOrderReadRepo) arm(b domain.Booking) {
	r.staleMu.Lock()
	r.stale = &b
	r.staleMu.Unlock()
}

func (r *staleOrderReadRepo) GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error) {
	r.staleMu.Lock()
	if r.stale != nil && r.stale.OrderID != nil && *r.stale.OrderID == orderID {
		b := *r.stale
		r.stale = nil
		r.staleMu.Unlock()
		return b, nil
	}
	r.staleMu.Unlock()
	return r.memRepo.GetBookingByOrderID(ctx, orderID)
}

// cancelOnConfirmRepo cancels the booking just before delegating
// MarkConfirmed, so the confirm always loses its conditional update to a
// cancellation.
type cancelOnConfirmRepo struct {
	*memRepo
}

func (r *cancelOnConfirmRepo) MarkConfirmed(ctx context.Context, id string) error {
	_ = r.memRepo.MarkCancelled(ctx, id, domain.StatusPendingPayment)
	return r.memRepo.MarkConfirmed(ctx, id)
}

// ---- fake payment gateway ----

type fakeGateway struct {
	mu     sync.Mutex
	orders int
	err    error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, receipt string, amount int64, currency string) (domain.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return domain.GatewayOrder{}, g.err
	}
	g.orders++
	return domain.GatewayOrder{
		ID:       fmt.Sprintf("order_%06d", g.orders),
		Amount:   amount,
		Currency: currency,
	}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_fake" }

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// ---- fake cache ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	hits  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	c.hits++
	if d, ok := dst.(*int); ok {
		*d = v.(int)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}
