package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"hotelbook/internal/adapters/observability"
	"hotelbook/internal/clock"
	"hotelbook/internal/domain"
)

// Ledger tracks per-night occupancy for every (hotel, room type) pair and is
// the sole serialization point for the check-and-reserve step. Contention is
// scoped to one shard per pair; unrelated hotels and room types never block
// each other.
//
// Holds are process-local and TTL-bounded. A hold whose expiry has passed is
// treated as released by every read, even before the sweep removes it.
// Committed occupancy is rebuilt from confirmed bookings via Prime at
// startup, so a restart only ever frees capacity.
type Ledger struct {
	clk clock.Clock

	mu     sync.Mutex
	shards map[string]*shard
	index  map[string]*shard // hold id → owning shard
}

type shard struct {
	mu        sync.Mutex
	holds     map[string]domain.InventoryHold
	committed map[string]domain.Stay // by hold id, keeps Commit idempotent
	nights    map[string]int         // committed rooms per ISO date
}

func New(clk clock.Clock) *Ledger {
	return &Ledger{
		clk:    clk,
		shards: make(map[string]*shard),
		index:  make(map[string]*shard),
	}
}

func shardKey(hotelID int64, roomType string) string {
	return fmt.Sprintf("%d|%s", hotelID, roomType)
}

func (l *Ledger) shardFor(key string) *shard {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.shards[key]
	if !ok {
		s = &shard{
			holds:     make(map[string]domain.InventoryHold),
			committed: make(map[string]domain.Stay),
			nights:    make(map[string]int),
		}
		l.shards[key] = s
	}
	return s
}

func (l *Ledger) lookup(holdID string) *shard {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index[holdID]
}

func (l *Ledger) register(holdID string, s *shard) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[holdID] = s
}

func (l *Ledger) unregister(ids []string) {
	if len(ids) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.index, id)
	}
}

// maxOccupied returns the highest per-night occupancy (committed rooms plus
// live holds) over [checkIn, checkOut). Caller holds s.mu.
func (s *shard) maxOccupied(checkIn, checkOut domain.Date, now time.Time) int {
	max := 0
	for d := checkIn; d.Before(checkOut); d = d.AddDays(1) {
		occ := s.nights[d.String()]
		for _, h := range s.holds {
			if !h.ExpiresAt.After(now) {
				continue
			}
			if d.Before(h.CheckOut) && !d.Before(h.CheckIn) {
				occ += h.Rooms
			}
		}
		if occ > max {
			max = occ
		}
	}
	return max
}

// CheckAvailability returns the number of rooms still free over the range.
// Advisory only; TryHold re-verifies under the shard lock.
func (l *Ledger) CheckAvailability(rt domain.RoomType, checkIn, checkOut domain.Date) int {
	s := l.shardFor(shardKey(rt.HotelID, rt.Name))
	s.mu.Lock()
	defer s.mu.Unlock()
	avail := rt.TotalRooms - s.maxOccupied(checkIn, checkOut, l.clk.Now())
	if avail < 0 {
		return 0
	}
	return avail
}

// TryHold atomically re-verifies capacity and reserves rooms for ttl. Two
// concurrent callers contending for the last room are serialized on the
// shard lock, so their holds can never jointly exceed TotalRooms.
func (l *Ledger) TryHold(rt domain.RoomType, checkIn, checkOut domain.Date, rooms int, ttl time.Duration) (domain.InventoryHold, error) {
	if rooms < 1 {
		return domain.InventoryHold{}, fmt.Errorf("%w: rooms must be ≥ 1", domain.ErrInvalidRequest)
	}
	if domain.DaysBetween(checkIn, checkOut) <= 0 {
		return domain.InventoryHold{}, fmt.Errorf("%w: empty date range", domain.ErrInvalidRequest)
	}

	s := l.shardFor(shardKey(rt.HotelID, rt.Name))
	now := l.clk.Now()

	s.mu.Lock()
	removed := s.prune(now)
	if rt.TotalRooms-s.maxOccupied(checkIn, checkOut, now) < rooms {
		s.mu.Unlock()
		l.unregister(removed)
		observability.ObserveLedger("reject")
		return domain.InventoryHold{}, fmt.Errorf("%w: %d rooms of %q at hotel %d for %s..%s",
			domain.ErrInsufficientInventory, rooms, rt.Name, rt.HotelID, checkIn, checkOut)
	}
	h := domain.InventoryHold{
		ID:        uuid.NewString(),
		HotelID:   rt.HotelID,
		RoomType:  rt.Name,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Rooms:     rooms,
		ExpiresAt: now.Add(ttl),
	}
	s.holds[h.ID] = h
	s.mu.Unlock()

	l.unregister(removed)
	l.register(h.ID, s)
	observability.ObserveLedger("hold")
	return h, nil
}

// Commit converts a hold into committed occupancy. A second Commit for the
// same hold is a no-op; a lapsed or released hold fails with
// ErrInventoryExpired and commits nothing.
func (l *Ledger) Commit(holdID string) error {
	s := l.lookup(holdID)
	if s == nil {
		return domain.ErrInventoryExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.committed[holdID]; done {
		return nil
	}
	h, ok := s.holds[holdID]
	if !ok {
		return domain.ErrInventoryExpired
	}
	if !h.ExpiresAt.After(l.clk.Now()) {
		delete(s.holds, holdID)
		return domain.ErrInventoryExpired
	}

	for d := h.CheckIn; d.Before(h.CheckOut); d = d.AddDays(1) {
		s.nights[d.String()] += h.Rooms
	}
	delete(s.holds, holdID)
	s.committed[holdID] = domain.Stay{
		HotelID:  h.HotelID,
		RoomType: h.RoomType,
		CheckIn:  h.CheckIn,
		CheckOut: h.CheckOut,
		Rooms:    h.Rooms,
	}
	observability.ObserveLedger("commit")
	return nil
}

// Release frees held capacity. Unknown, expired, or already-committed holds
// are a no-op, so duplicate releases are harmless.
func (l *Ledger) Release(holdID string) {
	s := l.lookup(holdID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if _, done := s.committed[holdID]; !done {
		if _, ok := s.holds[holdID]; ok {
			delete(s.holds, holdID)
			observability.ObserveLedger("release")
		}
	}
	s.mu.Unlock()
	l.unregister([]string{holdID})
}

// ReleaseStay frees committed occupancy after a confirmed booking is
// cancelled.
func (l *Ledger) ReleaseStay(st domain.Stay) {
	s := l.shardFor(shardKey(st.HotelID, st.RoomType))
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := st.CheckIn; d.Before(st.CheckOut); d = d.AddDays(1) {
		key := d.String()
		if n := s.nights[key] - st.Rooms; n > 0 {
			s.nights[key] = n
		} else {
			delete(s.nights, key)
		}
	}
	observability.ObserveLedger("release")
}

// AddStay records committed occupancy directly, bypassing the hold cycle.
// Used to prime the ledger from confirmed bookings at startup.
func (l *Ledger) AddStay(st domain.Stay) {
	s := l.shardFor(shardKey(st.HotelID, st.RoomType))
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := st.CheckIn; d.Before(st.CheckOut); d = d.AddDays(1) {
		s.nights[d.String()] += st.Rooms
	}
}

// Prime loads committed occupancy for all confirmed stays.
func (l *Ledger) Prime(stays []domain.Stay) {
	for _, st := range stays {
		l.AddStay(st)
	}
}

// prune removes expired holds and returns their ids. Caller holds s.mu.
func (s *shard) prune(now time.Time) []string {
	var removed []string
	for id, h := range s.holds {
		if !h.ExpiresAt.After(now) {
			delete(s.holds, id)
			removed = append(removed, id)
			observability.ObserveLedger("expire")
		}
	}
	return removed
}

// Sweep drops expired holds and past-night bookkeeping across all shards.
// Correctness never depends on it running: expiry is also evaluated lazily
// on every read.
func (l *Ledger) Sweep() int {
	now := l.clk.Now()
	today := domain.DateOf(now)

	l.mu.Lock()
	shards := make([]*shard, 0, len(l.shards))
	for _, s := range l.shards {
		shards = append(shards, s)
	}
	l.mu.Unlock()

	expired := 0
	for _, s := range shards {
		s.mu.Lock()
		removed := s.prune(now)
		for key := range s.nights {
			if d, err := domain.ParseDate(key); err == nil && d.Before(today) {
				delete(s.nights, key)
			}
		}
		for id, st := range s.committed {
			if st.CheckOut.Before(today) || st.CheckOut.Equal(today) {
				delete(s.committed, id)
				removed = append(removed, id)
			}
		}
		s.mu.Unlock()
		l.unregister(removed)
		expired += len(removed)
	}
	return expired
}
