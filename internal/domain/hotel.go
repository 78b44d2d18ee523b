package domain

type Hotel struct {
	ID      int64
	Name    string
	City    *string
	Country *string
}

// RoomType is a sellable room category of a hotel. Rate is per night in
// minor currency units (paise). Admin edits happen outside the booking flow;
// a booking attempt always works from the snapshot it read.
type RoomType struct {
	HotelID         int64
	Name            string
	RatePerNight    int64
	CapacityPerRoom int
	TotalRooms      int
}
