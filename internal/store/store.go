package store

import "carhub/pkg/domain"

// Store defines persistence operations for cars, users, wishlists, test-drive
// bookings, and dealership settings. Implementations: GormStore (Postgres)
// and MemoryStore (demo fixtures / tests).
type Store interface {
	// cars
	CreateCar(car domain.Car) error
	UpdateCar(car domain.Car) error
	DeleteCar(id string) error
	GetCar(id string) (domain.Car, bool, error)
	SearchCars(q domain.SearchQuery) (domain.SearchPage, error)
	FilterOptions() (domain.FilterOptions, error)
	AddCarImage(carID, imageURL string) error

	// users (provisioned by the auth sync, read-only here)
	GetUserByAuthID(authID string) (domain.User, bool, error)

	// wishlist
	ToggleSavedCar(userID, carID string) (saved bool, err error)
	SavedCarIDs(userID string) (map[string]struct{}, error)
	SavedCars(userID string) ([]domain.Car, error)

	// test drives
	CreateBooking(b domain.TestDriveBooking) error
	GetBooking(id string) (domain.TestDriveBooking, bool, error)
	ActiveBooking(userID, carID string) (domain.TestDriveBooking, bool, error)
	BookingsByUser(userID string) ([]domain.TestDriveBooking, error)
	SetBookingStatus(id string, status domain.BookingStatus) error

	// dealership
	Dealership() (domain.Dealership, bool, error)
	SaveDealership(d domain.Dealership) error
}
