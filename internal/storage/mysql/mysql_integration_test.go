//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"hotelbook/internal/domain"
	mysqlrepo "hotelbook/internal/storage/mysql"
)

// ---------- small helpers ----------
func pstr(s string) *string { return &s }

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=hotelbook",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/hotelbook?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC", hostPort)

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func sampleBooking(id, key string) domain.Booking {
	now := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	return domain.Booking{
		ID:       id,
		HotelID:  11001,
		RoomType: "deluxe",
		CheckIn:  domain.NewDate(2026, 10, 10),
		CheckOut: domain.NewDate(2026, 10, 13),
		Rooms:    2,
		Guests:   4,
		Guest: domain.GuestDetails{
			Name:  "Asha Rao",
			Email: "asha@example.com",
			Phone: "+91-9000000000",
		},
		SpecialRequests: "late check-in",
		Pricing: domain.Quote{
			RatePerNight: 200000,
			Rooms:        2,
			Nights:       3,
			TaxRateBps:   1800,
			Subtotal:     1200000,
			Tax:          216000,
			Total:        1416000,
		},
		Status:         domain.StatusDraft,
		Payment:        domain.PaymentPending,
		HoldID:         "hold-" + id,
		HoldExpiresAt:  now.Add(15 * time.Minute),
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ---------- the tests ----------

func TestRepo_EndToEnd(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	// catalog
	if err := repo.UpsertHotel(ctx, domain.Hotel{ID: 11001, Name: "Seaside Grand", City: pstr("Goa"), Country: pstr("IN")}); err != nil {
		t.Fatalf("UpsertHotel: %v", err)
	}
	if err := repo.UpsertRoomType(ctx, domain.RoomType{
		HotelID: 11001, Name: "deluxe", RatePerNight: 200000, CapacityPerRoom: 2, TotalRooms: 5,
	}); err != nil {
		t.Fatalf("UpsertRoomType: %v", err)
	}
	// upsert is idempotent and applies changes
	if err := repo.UpsertRoomType(ctx, domain.RoomType{
		HotelID: 11001, Name: "deluxe", RatePerNight: 210000, CapacityPerRoom: 2, TotalRooms: 5,
	}); err != nil {
		t.Fatalf("UpsertRoomType again: %v", err)
	}
	rt, err := repo.GetRoomType(ctx, 11001, "deluxe")
	if err != nil {
		t.Fatalf("GetRoomType: %v", err)
	}
	if rt.RatePerNight != 210000 || rt.TotalRooms != 5 {
		t.Fatalf("room type: %+v", rt)
	}
	if _, err := repo.GetRoomType(ctx, 11001, "suite"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing room type: %v", err)
	}

	// booking insert and round trip
	b := sampleBooking("b-1", "idem-1")
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	got, err := repo.GetBooking(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.Status != domain.StatusDraft || got.Pricing.Total != 1416000 || !got.CheckIn.Equal(b.CheckIn) {
		t.Fatalf("round trip: %+v", got)
	}
	if got.Guest.Email != "asha@example.com" || got.SpecialRequests != "late check-in" {
		t.Fatalf("guest fields: %+v", got)
	}

	// duplicate idempotency key is a conflict, not a second row
	dup := sampleBooking("b-2", "idem-1")
	if err := repo.CreateBooking(ctx, dup); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
	found, err := repo.FindBookingByIdempotencyKey(ctx, "idem-1")
	if err != nil || found == nil || found.ID != "b-1" {
		t.Fatalf("FindBookingByIdempotencyKey: %+v %v", found, err)
	}
	if found, _ := repo.FindBookingByIdempotencyKey(ctx, "nope"); found != nil {
		t.Fatalf("phantom booking: %+v", found)
	}
}

func TestRepo_ConditionalTransitions(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	if err := repo.CreateBooking(ctx, sampleBooking("b-t", "idem-t")); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	if err := repo.MarkPendingPayment(ctx, "b-t", "order_123", domain.PaymentPending); err != nil {
		t.Fatalf("MarkPendingPayment: %v", err)
	}
	got, err := repo.GetBookingByOrderID(ctx, "order_123")
	if err != nil || got.ID != "b-t" {
		t.Fatalf("GetBookingByOrderID: %+v %v", got, err)
	}

	// confirm wins, a second confirm and a late cancel both lose
	if err := repo.MarkConfirmed(ctx, "b-t"); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if err := repo.MarkConfirmed(ctx, "b-t"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second confirm: %v", err)
	}
	if err := repo.MarkCancelled(ctx, "b-t", domain.StatusPendingPayment); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("stale cancel: %v", err)
	}
	// cancel with the right expected status succeeds
	if err := repo.MarkCancelled(ctx, "b-t", domain.StatusConfirmed); err != nil {
		t.Fatalf("cancel confirmed: %v", err)
	}

	// failed path with refund flag
	if err := repo.CreateBooking(ctx, sampleBooking("b-f", "idem-f")); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if err := repo.MarkPendingPayment(ctx, "b-f", "order_456", domain.PaymentPending); err != nil {
		t.Fatalf("MarkPendingPayment: %v", err)
	}
	if err := repo.MarkFailed(ctx, "b-f", "inventory expired", true); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ = repo.GetBooking(ctx, "b-f")
	if got.Status != domain.StatusFailed || got.Payment != domain.PaymentRefundDue || got.FailureReason != "inventory expired" {
		t.Fatalf("failed booking: %+v", got)
	}

	if err := repo.AppendEvent(ctx, domain.BookingEvent{
		BookingID: "b-f",
		From:      domain.StatusPendingPayment,
		To:        domain.StatusFailed,
		Note:      "inventory expired, refund flagged",
		At:        time.Now().UTC(),
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
}

func TestRepo_Listings(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	mk := func(id, key, email string) {
		t.Helper()
		b := sampleBooking(id, key)
		b.Guest.Email = email
		b.HoldID = "hold-" + id
		if err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatalf("CreateBooking %s: %v", id, err)
		}
	}
	mk("l-1", "il-1", "asha@example.com")
	mk("l-2", "il-2", "asha@example.com")
	mk("l-3", "il-3", "ravi@example.com")

	if err := repo.MarkPendingPayment(ctx, "l-1", "order_l1", domain.PaymentPending); err != nil {
		t.Fatalf("MarkPendingPayment: %v", err)
	}
	if err := repo.MarkConfirmed(ctx, "l-1"); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}

	all, err := repo.ListBookingsByEmail(ctx, "asha@example.com", nil, 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListBookingsByEmail: %d %v", len(all), err)
	}
	st := domain.StatusConfirmed
	conf, err := repo.ListBookingsByEmail(ctx, "asha@example.com", &st, 10)
	if err != nil || len(conf) != 1 || conf[0].ID != "l-1" {
		t.Fatalf("filtered list: %+v %v", conf, err)
	}

	stays, err := repo.ListConfirmedStays(ctx)
	if err != nil || len(stays) != 1 || stays[0].Rooms != 2 {
		t.Fatalf("ListConfirmedStays: %+v %v", stays, err)
	}

	// l-2 is still pending and l-3 is still a draft, both with holds that
	// expire in 15 minutes; the confirmed l-1 never shows up
	if err := repo.MarkPendingPayment(ctx, "l-2", "order_l2", domain.PaymentPending); err != nil {
		t.Fatalf("MarkPendingPayment l-2: %v", err)
	}
	stale, err := repo.ListStalePending(ctx, time.Date(2026, 10, 1, 11, 0, 0, 0, time.UTC), 10)
	if err != nil || len(stale) != 2 {
		t.Fatalf("ListStalePending: %+v %v", stale, err)
	}
	ids := map[string]bool{stale[0].ID: true, stale[1].ID: true}
	if !ids["l-2"] || !ids["l-3"] {
		t.Fatalf("ListStalePending ids: %+v", ids)
	}
	if stale, _ := repo.ListStalePending(ctx, time.Date(2026, 10, 1, 10, 5, 0, 0, time.UTC), 10); len(stale) != 0 {
		t.Fatalf("nothing should be stale yet: %+v", stale)
	}
}
