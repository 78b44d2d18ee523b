package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"hotelbook/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// ---- catalog ----

func (r *Repo) UpsertHotel(ctx context.Context, h domain.Hotel) error {
	_, err := r.db.ExecContext(ctx, upsertHotelSQL, h.ID, h.Name, valStr(h.City), valStr(h.Country))
	return err
}

func (r *Repo) UpsertRoomType(ctx context.Context, rt domain.RoomType) error {
	_, err := r.db.ExecContext(ctx, upsertRoomTypeSQL,
		rt.HotelID, rt.Name, rt.RatePerNight, rt.CapacityPerRoom, rt.TotalRooms)
	return err
}

func (r *Repo) GetRoomType(ctx context.Context, hotelID int64, name string) (domain.RoomType, error) {
	var rt domain.RoomType
	err := r.db.QueryRowContext(ctx, getRoomTypeSQL, hotelID, name).
		Scan(&rt.HotelID, &rt.Name, &rt.RatePerNight, &rt.CapacityPerRoom, &rt.TotalRooms)
	if err == sql.ErrNoRows {
		return domain.RoomType{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RoomType{}, err
	}
	return rt, nil
}

// ---- bookings ----

func (r *Repo) CreateBooking(ctx context.Context, b domain.Booking) error {
	_, err := r.db.ExecContext(ctx, insertBookingSQL,
		b.ID, b.HotelID, b.RoomType,
		b.CheckIn.Time(), b.CheckOut.Time(),
		b.Rooms, b.Guests,
		b.Guest.Name, b.Guest.Email, b.Guest.Phone, b.SpecialRequests,
		b.Pricing.RatePerNight, b.Pricing.Nights, b.Pricing.TaxRateBps,
		b.Pricing.Subtotal, b.Pricing.Tax, b.Pricing.Total,
		string(b.Status), string(b.Payment),
		valStr(b.OrderID), b.HoldID, b.HoldExpiresAt,
		b.IdempotencyKey, b.FailureReason,
		b.CreatedAt, b.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return domain.ErrIdempotencyConflict
	}
	return err
}

func scanBooking(row interface{ Scan(...any) error }) (domain.Booking, error) {
	var (
		b                  domain.Booking
		checkIn, checkOut  time.Time
		orderID            sql.NullString
		specialRequests    sql.NullString
		status, payStatus  string
		failureReason      sql.NullString
		holdExpires        sql.NullTime
		createdAt, updated time.Time
	)
	if err := row.Scan(
		&b.ID, &b.HotelID, &b.RoomType, &checkIn, &checkOut, &b.Rooms, &b.Guests,
		&b.Guest.Name, &b.Guest.Email, &b.Guest.Phone, &specialRequests,
		&b.Pricing.RatePerNight, &b.Pricing.Nights, &b.Pricing.TaxRateBps,
		&b.Pricing.Subtotal, &b.Pricing.Tax, &b.Pricing.Total,
		&status, &payStatus, &orderID, &b.HoldID, &holdExpires,
		&b.IdempotencyKey, &failureReason, &createdAt, &updated,
	); err != nil {
		return domain.Booking{}, err
	}
	b.CheckIn = domain.DateOf(checkIn)
	b.CheckOut = domain.DateOf(checkOut)
	b.Pricing.Rooms = b.Rooms
	b.Status = domain.BookingStatus(status)
	b.Payment = domain.PaymentStatus(payStatus)
	if orderID.Valid {
		s := orderID.String
		b.OrderID = &s
	}
	if specialRequests.Valid {
		b.SpecialRequests = specialRequests.String
	}
	if failureReason.Valid {
		b.FailureReason = failureReason.String
	}
	if holdExpires.Valid {
		b.HoldExpiresAt = holdExpires.Time
	}
	b.CreatedAt = createdAt
	b.UpdatedAt = updated
	return b, nil
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, getBookingByOrderSQL, orderID))
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) FindBookingByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, getBookingByIdemKeySQL, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) ListBookingsByEmail(ctx context.Context, email string, status *domain.BookingStatus, limit int) ([]domain.Booking, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		rows, err = r.db.QueryContext(ctx, listBookingsByEmailStatusSQL, email, string(*status), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, listBookingsByEmailSQL, email, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) ListConfirmedStays(ctx context.Context) ([]domain.Stay, error) {
	rows, err := r.db.QueryContext(ctx, listConfirmedStaysSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Stay
	for rows.Next() {
		var (
			st                domain.Stay
			checkIn, checkOut time.Time
		)
		if err := rows.Scan(&st.HotelID, &st.RoomType, &checkIn, &checkOut, &st.Rooms); err != nil {
			return nil, err
		}
		st.CheckIn = domain.DateOf(checkIn)
		st.CheckOut = domain.DateOf(checkOut)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *Repo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, listStalePendingSQL, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// conditionalExec runs an update that matches on the expected current status
// and maps "no rows changed" to ErrInvalidTransition.
func (r *Repo) conditionalExec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *Repo) MarkPendingPayment(ctx context.Context, id, orderID string, payment domain.PaymentStatus) error {
	return r.conditionalExec(ctx, markPendingPaymentSQL, string(payment), orderID, id)
}

func (r *Repo) MarkConfirmed(ctx context.Context, id string) error {
	return r.conditionalExec(ctx, markConfirmedSQL, id)
}

func (r *Repo) MarkFailed(ctx context.Context, id, reason string, refundDue bool) error {
	pay := domain.PaymentFailed
	if refundDue {
		pay = domain.PaymentRefundDue
	}
	return r.conditionalExec(ctx, markFailedSQL, string(pay), reason, id)
}

func (r *Repo) MarkCancelled(ctx context.Context, id string, from domain.BookingStatus) error {
	return r.conditionalExec(ctx, markCancelledSQL, id, string(from))
}

func (r *Repo) FlagRefund(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, flagRefundSQL, id)
	return err
}

func (r *Repo) AppendEvent(ctx context.Context, ev domain.BookingEvent) error {
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		ev.BookingID, string(ev.From), string(ev.To), ev.Note, ev.At)
	return err
}
