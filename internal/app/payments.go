package app

import (
	"context"
	"errors"
	"fmt"

	"hotelbook/internal/adapters/observability"
	"hotelbook/internal/adapters/razorpay"
	"hotelbook/internal/clock"
	"hotelbook/internal/domain"
)

// OrderDetails is what the browser checkout needs to collect a payment.
type OrderDetails struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// PaymentService reconciles gateway payments against bookings: it creates
// orders for the frozen booking total and validates the asynchronous,
// possibly duplicated confirmation callback. Only this service may move a
// booking to confirmed.
type PaymentService struct {
	repo     domain.BookingRepository
	ledger   domain.Ledger
	gw       domain.PaymentGateway
	secret   string
	currency string
	clk      clock.Clock
}

func NewPaymentService(repo domain.BookingRepository, ledger domain.Ledger, gw domain.PaymentGateway, secret, currency string, clk clock.Clock) *PaymentService {
	return &PaymentService{repo: repo, ledger: ledger, gw: gw, secret: secret, currency: currency, clk: clk}
}

func (s *PaymentService) orderDetails(b domain.Booking) *OrderDetails {
	if b.OrderID == nil {
		return nil
	}
	return &OrderDetails{
		OrderID:  *b.OrderID,
		Amount:   b.Pricing.Total,
		Currency: s.currency,
		KeyID:    s.gw.KeyID(),
	}
}

// CreateOrder requests a gateway order for the booking's frozen total and
// moves the booking draft → pending_payment. On ErrGatewayUnavailable the
// booking stays draft and the call is safe to retry; a retry after a
// successful order returns the existing order instead of creating another.
func (s *PaymentService) CreateOrder(ctx context.Context, bookingID string) (OrderDetails, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return OrderDetails{}, err
	}
	if b.Status == domain.StatusPendingPayment && b.OrderID != nil {
		return *s.orderDetails(b), nil
	}
	if b.Status != domain.StatusDraft {
		return OrderDetails{}, fmt.Errorf("%w: cannot order payment for %s booking", domain.ErrInvalidTransition, b.Status)
	}

	ord, err := s.gw.CreateOrder(ctx, b.ID, b.Pricing.Total, s.currency)
	if err != nil {
		return OrderDetails{}, err
	}
	if err := s.repo.MarkPendingPayment(ctx, b.ID, ord.ID, domain.PaymentPending); err != nil {
		return OrderDetails{}, err
	}
	_ = s.repo.AppendEvent(ctx, domain.BookingEvent{
		BookingID: b.ID,
		From:      domain.StatusDraft,
		To:        domain.StatusPendingPayment,
		Note:      "order " + ord.ID,
		At:        s.clk.Now(),
	})
	return OrderDetails{OrderID: ord.ID, Amount: b.Pricing.Total, Currency: s.currency, KeyID: s.gw.KeyID()}, nil
}

// VerifyCallback validates a gateway confirmation callback. The signature is
// recomputed from orderID and paymentID under the shared secret and compared
// in constant time; a mismatch leaves the booking untouched so a corrected
// retry can still succeed. The operation is idempotent under at-least-once
// delivery: only the first successful verification commits inventory and
// confirms the booking.
func (s *PaymentService) VerifyCallback(ctx context.Context, orderID, paymentID, signature string) (domain.BookingStatus, error) {
	if !razorpay.VerifySignature(orderID, paymentID, signature, s.secret) {
		return "", fmt.Errorf("%w: order %s", domain.ErrSignatureMismatch, orderID)
	}

	b, err := s.repo.GetBookingByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}

	switch b.Status {
	case domain.StatusConfirmed:
		// duplicate delivery, side effects already applied
		return domain.StatusConfirmed, nil
	case domain.StatusFailed:
		// the sweep or an earlier callback already failed the booking; the
		// payment itself is genuine, so make sure a refund is flagged
		if b.Payment != domain.PaymentRefundDue {
			_ = s.repo.FlagRefund(ctx, b.ID)
		}
		return domain.StatusFailed, fmt.Errorf("%w: booking %s", domain.ErrInventoryExpired, b.ID)
	case domain.StatusCancelled:
		_ = s.repo.FlagRefund(ctx, b.ID)
		return domain.StatusCancelled, fmt.Errorf("%w: booking %s already cancelled", domain.ErrInvalidTransition, b.ID)
	case domain.StatusPendingPayment:
		// fall through to commit
	default:
		return b.Status, fmt.Errorf("%w: callback for %s booking", domain.ErrInvalidTransition, b.Status)
	}

	if err := s.ledger.Commit(b.HoldID); err != nil {
		if !errors.Is(err, domain.ErrInventoryExpired) {
			return "", err
		}
		// hold lapsed before the payment completed: the payment verified
		// fine but the rooms are gone, so fail the booking and flag the
		// refund for external handling
		if ferr := s.repo.MarkFailed(ctx, b.ID, "inventory expired", true); ferr != nil {
			if errors.Is(ferr, domain.ErrInvalidTransition) {
				return s.resolveRace(ctx, orderID)
			}
			return "", ferr
		}
		_ = s.repo.AppendEvent(ctx, domain.BookingEvent{
			BookingID: b.ID,
			From:      domain.StatusPendingPayment,
			To:        domain.StatusFailed,
			Note:      "inventory expired, refund flagged",
			At:        s.clk.Now(),
		})
		observability.ObserveBooking("failed")
		return domain.StatusFailed, fmt.Errorf("%w: booking %s", domain.ErrInventoryExpired, b.ID)
	}

	if err := s.repo.MarkConfirmed(ctx, b.ID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return s.resolveConfirmRace(ctx, orderID, b)
		}
		return "", err
	}
	_ = s.repo.AppendEvent(ctx, domain.BookingEvent{
		BookingID: b.ID,
		From:      domain.StatusPendingPayment,
		To:        domain.StatusConfirmed,
		Note:      "payment " + paymentID,
		At:        s.clk.Now(),
	})
	observability.ObserveBooking("confirmed")
	return domain.StatusConfirmed, nil
}

// resolveRace re-reads the booking after a losing conditional update and
// reports the winner's outcome.
func (s *PaymentService) resolveRace(ctx context.Context, orderID string) (domain.BookingStatus, error) {
	cur, err := s.repo.GetBookingByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if cur.Status == domain.StatusConfirmed {
		return domain.StatusConfirmed, nil
	}
	return cur.Status, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, cur.ID, cur.Status)
}

// resolveConfirmRace handles a confirm that lost its conditional update after
// the hold was already committed. Who won decides the compensation: a
// duplicate delivery that confirmed first needs nothing, the occupancy it
// committed is the occupancy we see. A cancellation or the sweep winning
// instead leaves committed rooms behind a dead booking, so those come back
// and the captured payment is flagged for refund.
func (s *PaymentService) resolveConfirmRace(ctx context.Context, orderID string, b domain.Booking) (domain.BookingStatus, error) {
	cur, err := s.repo.GetBookingByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if cur.Status == domain.StatusConfirmed {
		return domain.StatusConfirmed, nil
	}
	s.ledger.ReleaseStay(b.Stay())
	if cur.Payment != domain.PaymentRefundDue {
		_ = s.repo.FlagRefund(ctx, cur.ID)
	}
	return cur.Status, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, cur.ID, cur.Status)
}
