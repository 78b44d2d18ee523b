package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"hotelbook/internal/app"
	"hotelbook/internal/domain"
)

type Handlers struct {
	R *app.ReservationService
	P *app.PaymentService
	Q *app.QueryService

	validate *validator.Validate
}

func NewHandlers(r *app.ReservationService, p *app.PaymentService, q *app.QueryService) *Handlers {
	return &Handlers{R: r, P: p, Q: q, validate: validator.New()}
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/hotels/{id}/availability", h.checkAvailability)
	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings", h.listBookings)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
	s.mux.Post("/v1/payments/orders", h.createOrder)
	s.mux.Post("/v1/payments/verify", h.verifyPayment)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the error taxonomy onto HTTP statuses. The split matters
// to clients: 4xx means fix the request, 409 means the business state says
// no, 502 means try the same call again.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, domain.ErrSignatureMismatch):
		writeProblem(w, http.StatusBadRequest, "Signature Mismatch", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInsufficientInventory):
		writeProblem(w, http.StatusConflict, "Insufficient Inventory", err.Error())
	case errors.Is(err, domain.ErrCancellationWindowClosed):
		writeProblem(w, http.StatusConflict, "Cancellation Window Closed", err.Error())
	case errors.Is(err, domain.ErrInventoryExpired):
		writeProblem(w, http.StatusConflict, "Inventory Expired", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, domain.ErrIdempotencyConflict):
		writeProblem(w, http.StatusConflict, "Idempotency Conflict", err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeProblem(w, http.StatusBadGateway, "Gateway Unavailable", "payment gateway unavailable, retry order creation")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func (h *Handlers) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrInvalidRequest
	}
	if err := h.validate.Struct(dst); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}

// ---- availability ----

func (h *Handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	hotelID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "hotel id must be a number")
		return
	}
	q := r.URL.Query()
	checkIn, err := domain.ParseDate(q.Get("checkIn"))
	if err != nil {
		writeError(w, err)
		return
	}
	checkOut, err := domain.ParseDate(q.Get("checkOut"))
	if err != nil {
		writeError(w, err)
		return
	}
	rooms := 1
	if rs := q.Get("rooms"); rs != "" {
		if rooms, err = strconv.Atoi(rs); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Request", "rooms must be a number")
			return
		}
	}

	avail, err := h.Q.CheckAvailability(r.Context(), hotelID, q.Get("roomType"), checkIn, checkOut, rooms)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// ---- bookings ----

type guestPayload struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
}

type createBookingRequest struct {
	HotelID         int64        `json:"hotelId" validate:"required,gt=0"`
	RoomType        string       `json:"roomType" validate:"required"`
	CheckIn         domain.Date  `json:"checkIn"`
	CheckOut        domain.Date  `json:"checkOut"`
	Rooms           int          `json:"rooms" validate:"required,min=1"`
	Guests          int          `json:"guests" validate:"required,min=1"`
	Guest           guestPayload `json:"guestDetails" validate:"required"`
	SpecialRequests string       `json:"specialRequests"`
	IdempotencyKey  string       `json:"idempotencyKey" validate:"required"`
}

type bookingResponse struct {
	BookingID string               `json:"bookingId"`
	Status    domain.BookingStatus `json:"status"`
	Payment   domain.PaymentStatus `json:"paymentStatus"`
	HotelID   int64                `json:"hotelId"`
	RoomType  string               `json:"roomType"`
	CheckIn   domain.Date          `json:"checkIn"`
	CheckOut  domain.Date          `json:"checkOut"`
	Rooms     int                  `json:"rooms"`
	Guests    int                  `json:"guests"`
	Pricing   domain.Quote         `json:"pricingSnapshot"`
	Order     *app.OrderDetails    `json:"order,omitempty"`
}

func toBookingResponse(b domain.Booking, ord *app.OrderDetails) bookingResponse {
	return bookingResponse{
		BookingID: b.ID,
		Status:    b.Status,
		Payment:   b.Payment,
		HotelID:   b.HotelID,
		RoomType:  b.RoomType,
		CheckIn:   b.CheckIn,
		CheckOut:  b.CheckOut,
		Rooms:     b.Rooms,
		Guests:    b.Guests,
		Pricing:   b.Pricing,
		Order:     ord,
	}
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CheckIn.IsZero() || req.CheckOut.IsZero() {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "checkIn and checkOut are required")
		return
	}

	b, ord, err := h.R.CreateBooking(r.Context(), app.CreateBookingInput{
		HotelID:  req.HotelID,
		RoomType: req.RoomType,
		CheckIn:  req.CheckIn,
		CheckOut: req.CheckOut,
		Rooms:    req.Rooms,
		Guests:   req.Guests,
		Guest: domain.GuestDetails{
			Name:  req.Guest.Name,
			Email: req.Guest.Email,
			Phone: req.Guest.Phone,
		},
		SpecialRequests: req.SpecialRequests,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		// a gateway outage still produced a draft booking with a live
		// hold; hand it back so the client can retry the order
		if errors.Is(err, domain.ErrGatewayUnavailable) && b.ID != "" {
			writeJSON(w, http.StatusCreated, toBookingResponse(b, nil))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b, ord))
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Q.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, nil))
}

func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var status *domain.BookingStatus
	if st := q.Get("status"); st != "" {
		s := domain.BookingStatus(st)
		status = &s
	}
	limit := 50
	if ls := q.Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid Request", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	bs, err := h.Q.ListBookings(r.Context(), q.Get("email"), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]bookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResponse(b, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.R.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": b.Status})
}

// ---- payments ----

type createOrderRequest struct {
	BookingID string `json:"bookingId" validate:"required"`
}

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ord, err := h.P.CreateOrder(r.Context(), req.BookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

func (h *Handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	status, err := h.P.VerifyCallback(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}
