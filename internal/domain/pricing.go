package domain

import "fmt"

// Quote is the pricing snapshot frozen onto a booking at creation time.
// All amounts are minor currency units. Later rate changes never alter it.
type Quote struct {
	RatePerNight int64 `json:"ratePerNight"`
	Rooms        int   `json:"rooms"`
	Nights       int   `json:"nights"`
	TaxRateBps   int   `json:"taxRateBps"`
	Subtotal     int64 `json:"subtotal"`
	Tax          int64 `json:"tax"`
	Total        int64 `json:"total"`
}

// PriceStay computes the quote for a stay. Tax is rounded half-up to the
// minor unit exactly once, at the subtotal→tax boundary; the total is the
// plain sum and is never re-rounded.
func PriceStay(rate int64, rooms int, checkIn, checkOut Date, taxRateBps int) (Quote, error) {
	nights := DaysBetween(checkIn, checkOut)
	if nights <= 0 {
		return Quote{}, fmt.Errorf("%w: check-out %s must be after check-in %s",
			ErrInvalidRequest, checkOut, checkIn)
	}
	if rate < 0 || rooms < 1 || taxRateBps < 0 {
		return Quote{}, fmt.Errorf("%w: bad pricing inputs", ErrInvalidRequest)
	}
	subtotal := rate * int64(rooms) * int64(nights)
	tax := (subtotal*int64(taxRateBps) + 5000) / 10000
	return Quote{
		RatePerNight: rate,
		Rooms:        rooms,
		Nights:       nights,
		TaxRateBps:   taxRateBps,
		Subtotal:     subtotal,
		Tax:          tax,
		Total:        subtotal + tax,
	}, nil
}
