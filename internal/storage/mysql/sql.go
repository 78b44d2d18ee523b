package mysql

const upsertHotelSQL = `
INSERT INTO hotels (id, name, city, country)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name       = VALUES(name),
  city       = VALUES(city),
  country    = VALUES(country),
  updated_at = CURRENT_TIMESTAMP
`

const upsertRoomTypeSQL = `
INSERT INTO room_types (hotel_id, name, rate_per_night, capacity_per_room, total_rooms)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  rate_per_night    = VALUES(rate_per_night),
  capacity_per_room = VALUES(capacity_per_room),
  total_rooms       = VALUES(total_rooms),
  updated_at        = CURRENT_TIMESTAMP
`

const getRoomTypeSQL = `
SELECT hotel_id, name, rate_per_night, capacity_per_room, total_rooms
FROM room_types
WHERE hotel_id = ? AND name = ?
`

const insertBookingSQL = `
INSERT INTO bookings
  (id, hotel_id, room_type, check_in, check_out, rooms, guests,
   guest_name, guest_email, guest_phone, special_requests,
   rate_per_night, nights, tax_rate_bps, subtotal, tax, total,
   status, payment_status, order_id, hold_id, hold_expires_at,
   idempotency_key, failure_reason, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// selectBookingCols must stay in sync with scanBooking.
const selectBookingCols = `
SELECT id, hotel_id, room_type, check_in, check_out, rooms, guests,
       guest_name, guest_email, guest_phone, special_requests,
       rate_per_night, nights, tax_rate_bps, subtotal, tax, total,
       status, payment_status, order_id, hold_id, hold_expires_at,
       idempotency_key, failure_reason, created_at, updated_at
FROM bookings
`

const getBookingSQL = selectBookingCols + `WHERE id = ?`

const getBookingByOrderSQL = selectBookingCols + `WHERE order_id = ?`

const getBookingByIdemKeySQL = selectBookingCols + `WHERE idempotency_key = ?`

const listBookingsByEmailSQL = selectBookingCols + `
WHERE guest_email = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`

const listBookingsByEmailStatusSQL = selectBookingCols + `
WHERE guest_email = ? AND status = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`

const listConfirmedStaysSQL = `
SELECT hotel_id, room_type, check_in, check_out, rooms
FROM bookings
WHERE status = 'confirmed' AND check_out >= CURDATE()
`

const listStalePendingSQL = selectBookingCols + `
WHERE status IN ('draft', 'pending_payment') AND hold_expires_at < ?
ORDER BY hold_expires_at
LIMIT ?
`

// Conditional transitions: the WHERE clause on the current status makes each
// update the loser-detection point under concurrent writers.

const markPendingPaymentSQL = `
UPDATE bookings
SET status = 'pending_payment', payment_status = ?, order_id = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'draft'
`

const markConfirmedSQL = `
UPDATE bookings
SET status = 'confirmed', payment_status = 'paid', updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'pending_payment'
`

const markFailedSQL = `
UPDATE bookings
SET status = 'failed', payment_status = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'pending_payment'
`

const markCancelledSQL = `
UPDATE bookings
SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = ?
`

const flagRefundSQL = `
UPDATE bookings
SET payment_status = 'refund_due', updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

const insertEventSQL = `
INSERT INTO booking_events (booking_id, from_status, to_status, note, at)
VALUES (?, ?, ?, ?, ?)
`
