package domain

import "time"

type CarStatus string

const (
	CarAvailable   CarStatus = "AVAILABLE"
	CarUnavailable CarStatus = "UNAVAILABLE"
	CarSold        CarStatus = "SOLD"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingNoShow    BookingStatus = "NO_SHOW"
)

// ActiveBookingStatuses are the states shown as "your existing test drive"
// on the car detail page.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingCompleted}

type Car struct {
	ID           string    `json:"id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Price        float64   `json:"price"`
	Mileage      int       `json:"mileage"`
	Color        string    `json:"color"`
	FuelType     string    `json:"fuelType"`
	Transmission string    `json:"transmission"`
	BodyType     string    `json:"bodyType"`
	Seats        int       `json:"seats"`
	Description  string    `json:"description"`
	Status       CarStatus `json:"status"`
	Featured     bool      `json:"featured"`
	Images       []string  `json:"images"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Wishlisted is caller-specific and filled in by the application layer,
	// never by the store.
	Wishlisted bool `json:"wishlisted"`
}

type User struct {
	ID        string    `json:"id"`
	AuthID    string    `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type SavedCar struct {
	UserID  string    `json:"userId"`
	CarID   string    `json:"carId"`
	SavedAt time.Time `json:"savedAt"`
}

type TestDriveBooking struct {
	ID          string        `json:"id"`
	CarID       string        `json:"carId"`
	UserID      string        `json:"userId"`
	Status      BookingStatus `json:"status"`
	BookingDate string        `json:"bookingDate"`
	StartTime   string        `json:"startTime"`
	EndTime     string        `json:"endTime"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type WorkingHour struct {
	DayOfWeek int    `json:"dayOfWeek"`
	OpenTime  string `json:"openTime"`
	CloseTime string `json:"closeTime"`
	IsOpen    bool   `json:"isOpen"`
}

type Dealership struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Address      string        `json:"address"`
	Phone        string        `json:"phone"`
	Email        string        `json:"email"`
	WorkingHours []WorkingHour `json:"workingHours"`
}

// PriceRange is the [min,max] price span over available inventory.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FilterOptions is the vocabulary the search UI renders its controls from.
type FilterOptions struct {
	Makes         []string   `json:"makes"`
	BodyTypes     []string   `json:"bodyTypes"`
	FuelTypes     []string   `json:"fuelTypes"`
	Transmissions []string   `json:"transmissions"`
	PriceRange    PriceRange `json:"priceRange"`
}

// Sort keys accepted by the listing search.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "priceAsc"
	SortPriceDesc = "priceDesc"
)

// SearchQuery carries the flat set of optional listing filters.
// Zero values mean "not provided"; MaxPrice <= 0 means unbounded.
type SearchQuery struct {
	Search       string
	Make         string
	BodyType     string
	FuelType     string
	Transmission string
	MinPrice     float64
	MaxPrice     float64
	SortBy       string
	Page         int
	Limit        int
}

// SearchPage is one page of listing results plus the totals computed from
// the same predicate.
type SearchPage struct {
	Cars  []Car
	Total int64
}
