package app

import (
	"context"
	"fmt"
	"time"

	"hotelbook/internal/domain"
)

type QueryService struct {
	repo     domain.BookingRepository
	catalog  domain.CatalogRepository
	ledger   domain.Ledger
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(repo domain.BookingRepository, catalog domain.CatalogRepository, ledger domain.Ledger, cache domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: repo, catalog: catalog, ledger: ledger, cache: cache, cacheTTL: ttl}
}

type Availability struct {
	Available      bool `json:"available"`
	AvailableRooms int  `json:"availableRooms"`
}

// CheckAvailability answers the advisory availability query. The free-room
// count is cached under a short TTL; TryHold re-verifies authoritatively, so
// a slightly stale answer here can only cost a later InsufficientInventory.
func (s *QueryService) CheckAvailability(ctx context.Context, hotelID int64, roomType string, checkIn, checkOut domain.Date, rooms int) (Availability, error) {
	if rooms < 1 {
		return Availability{}, fmt.Errorf("%w: rooms must be at least 1", domain.ErrInvalidRequest)
	}
	nights := domain.DaysBetween(checkIn, checkOut)
	if nights <= 0 {
		return Availability{}, fmt.Errorf("%w: check-out must be after check-in", domain.ErrInvalidRequest)
	}
	if nights > maxStayNights {
		return Availability{}, fmt.Errorf("%w: stay exceeds %d nights", domain.ErrInvalidRequest, maxStayNights)
	}

	key := fmt.Sprintf("avail:%d:%s:%s:%s", hotelID, roomType, checkIn, checkOut)
	var count int
	if ok, _ := s.cache.Get(ctx, key, &count); ok {
		return Availability{Available: count >= rooms, AvailableRooms: count}, nil
	}

	rt, err := s.catalog.GetRoomType(ctx, hotelID, roomType)
	if err != nil {
		return Availability{}, err
	}
	count = s.ledger.CheckAvailability(rt, checkIn, checkOut)
	_ = s.cache.Set(ctx, key, count, int(s.cacheTTL.Seconds()))
	return Availability{Available: count >= rooms, AvailableRooms: count}, nil
}

func (s *QueryService) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ListBookings returns a guest's bookings, newest first, optionally filtered
// by status.
func (s *QueryService) ListBookings(ctx context.Context, email string, status *domain.BookingStatus, limit int) ([]domain.Booking, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email required", domain.ErrInvalidRequest)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListBookingsByEmail(ctx, email, status, limit)
}
