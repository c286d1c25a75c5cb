package store

import (
	"testing"
	"time"

	"carhub/pkg/domain"
)

func demoStoreForTest(t *testing.T) *MemoryStore {
	t.Helper()
	return NewDemoStore()
}

func TestSearchCarsFiltersByPredicate(t *testing.T) {
	m := demoStoreForTest(t)

	page, err := m.SearchCars(domain.SearchQuery{Make: "Honda", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("honda total = %d, want 2", page.Total)
	}
	for _, car := range page.Cars {
		if car.Make != "Honda" {
			t.Fatalf("unexpected make %q", car.Make)
		}
	}

	page, err = m.SearchCars(domain.SearchQuery{Search: "hybrid", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("text search: %v", err)
	}
	if page.Total == 0 {
		t.Fatalf("text search matched nothing")
	}
	for _, car := range page.Cars {
		if car.FuelType != "Hybrid" {
			t.Fatalf("text match %s/%s is not a hybrid description", car.Make, car.Model)
		}
	}
}

func TestSearchCarsExcludesUnavailable(t *testing.T) {
	m := demoStoreForTest(t)
	cars := DemoCars()
	sold := cars[0]
	sold.Status = domain.CarSold
	if err := m.UpdateCar(sold); err != nil {
		t.Fatalf("mark sold: %v", err)
	}

	page, err := m.SearchCars(domain.SearchQuery{Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != int64(len(cars)-1) {
		t.Fatalf("total = %d, want %d", page.Total, len(cars)-1)
	}
	for _, car := range page.Cars {
		if car.ID == sold.ID {
			t.Fatalf("sold car %s still listed", sold.ID)
		}
	}
}

func TestSearchCarsPriceBounds(t *testing.T) {
	m := demoStoreForTest(t)

	page, err := m.SearchCars(domain.SearchQuery{MinPrice: 30000, MaxPrice: 40000, Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total == 0 {
		t.Fatalf("expected matches in 30k-40k band")
	}
	for _, car := range page.Cars {
		if car.Price < 30000 || car.Price > 40000 {
			t.Fatalf("car %s price %.0f outside bounds", car.ID, car.Price)
		}
	}

	// MaxPrice 0 means unbounded.
	page, err = m.SearchCars(domain.SearchQuery{MaxPrice: 0, Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("unbounded search: %v", err)
	}
	if page.Total != int64(len(DemoCars())) {
		t.Fatalf("unbounded total = %d, want all", page.Total)
	}
}

func TestSearchCarsSortOrders(t *testing.T) {
	m := demoStoreForTest(t)

	page, err := m.SearchCars(domain.SearchQuery{SortBy: domain.SortPriceDesc, Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i := 1; i < len(page.Cars); i++ {
		if page.Cars[i].Price > page.Cars[i-1].Price {
			t.Fatalf("priceDesc out of order at %d", i)
		}
	}

	page, err = m.SearchCars(domain.SearchQuery{SortBy: domain.SortNewest, Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i := 1; i < len(page.Cars); i++ {
		if page.Cars[i].CreatedAt.After(page.Cars[i-1].CreatedAt) {
			t.Fatalf("newest out of order at %d", i)
		}
	}
}

func TestSearchCarsPaginationClamps(t *testing.T) {
	m := demoStoreForTest(t)

	page, err := m.SearchCars(domain.SearchQuery{Page: 99, Limit: 6})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Cars) != 0 {
		t.Fatalf("out-of-range page returned %d cars", len(page.Cars))
	}
	if page.Total != int64(len(DemoCars())) {
		t.Fatalf("total = %d even off the end", page.Total)
	}
}

func TestFilterOptionsComputesVocabulary(t *testing.T) {
	m := demoStoreForTest(t)
	opts, err := m.FilterOptions()
	if err != nil {
		t.Fatalf("filter options: %v", err)
	}
	if len(opts.Makes) == 0 || len(opts.BodyTypes) == 0 {
		t.Fatalf("empty vocabulary: %+v", opts)
	}
	for i := 1; i < len(opts.Makes); i++ {
		if opts.Makes[i] < opts.Makes[i-1] {
			t.Fatalf("makes not sorted: %v", opts.Makes)
		}
	}
	if opts.PriceRange.Min <= 0 || opts.PriceRange.Max <= opts.PriceRange.Min {
		t.Fatalf("price range = %+v", opts.PriceRange)
	}
}

func TestToggleSavedCarRoundTrip(t *testing.T) {
	m := NewMemoryStore()

	saved, err := m.ToggleSavedCar("user-1", "car-1")
	if err != nil || !saved {
		t.Fatalf("first toggle = (%v, %v), want saved", saved, err)
	}
	saved, err = m.ToggleSavedCar("user-1", "car-1")
	if err != nil || saved {
		t.Fatalf("second toggle = (%v, %v), want removed", saved, err)
	}

	ids, err := m.SavedCarIDs("user-1")
	if err != nil {
		t.Fatalf("saved ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("saved ids = %v, want empty", ids)
	}
}

func TestSavedCarsNewestFirst(t *testing.T) {
	m := demoStoreForTest(t)
	cars := DemoCars()

	// Saved timestamps come from the store clock, so order the toggles.
	if _, err := m.ToggleSavedCar("user-1", cars[0].ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := m.ToggleSavedCar("user-1", cars[1].ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	saved, err := m.SavedCars("user-1")
	if err != nil {
		t.Fatalf("saved cars: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("saved = %d cars, want 2", len(saved))
	}
	if saved[0].ID != cars[1].ID {
		t.Fatalf("saved order = [%s %s], want newest first", saved[0].ID, saved[1].ID)
	}
	for _, car := range saved {
		if !car.Wishlisted {
			t.Fatalf("saved car %s not marked wishlisted", car.ID)
		}
	}
}

func TestDeleteCarDropsWishlistRows(t *testing.T) {
	m := demoStoreForTest(t)
	carID := DemoCars()[0].ID
	if _, err := m.ToggleSavedCar("user-1", carID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := m.DeleteCar(carID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ids, err := m.SavedCarIDs("user-1")
	if err != nil {
		t.Fatalf("saved ids: %v", err)
	}
	if _, still := ids[carID]; still {
		t.Fatalf("wishlist row survived car deletion")
	}
}

func TestActiveBookingPicksLatestActive(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	seed := []domain.TestDriveBooking{
		{ID: "b1", UserID: "user-1", CarID: "car-1", Status: domain.BookingCancelled, CreatedAt: base},
		{ID: "b2", UserID: "user-1", CarID: "car-1", Status: domain.BookingPending, CreatedAt: base.Add(time.Hour)},
		{ID: "b3", UserID: "user-1", CarID: "car-1", Status: domain.BookingConfirmed, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "b4", UserID: "user-2", CarID: "car-1", Status: domain.BookingPending, CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, b := range seed {
		if err := m.CreateBooking(b); err != nil {
			t.Fatalf("seed %s: %v", b.ID, err)
		}
	}

	booking, found, err := m.ActiveBooking("user-1", "car-1")
	if err != nil {
		t.Fatalf("active booking: %v", err)
	}
	if !found || booking.ID != "b3" {
		t.Fatalf("active booking = (%+v, %v), want b3", booking, found)
	}

	// Cancelled-only history reads as no active booking.
	booking, found, err = m.ActiveBooking("user-3", "car-1")
	if err != nil {
		t.Fatalf("active booking: %v", err)
	}
	if found {
		t.Fatalf("unexpected active booking %+v", booking)
	}
}

func TestBookingsByUserNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"b1", "b2", "b3"} {
		b := domain.TestDriveBooking{ID: id, UserID: "user-1", CarID: "car-1", Status: domain.BookingPending, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := m.CreateBooking(b); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	bookings, err := m.BookingsByUser("user-1")
	if err != nil {
		t.Fatalf("bookings: %v", err)
	}
	if len(bookings) != 3 || bookings[0].ID != "b3" {
		t.Fatalf("bookings = %+v, want b3 first", bookings)
	}
}

func TestGetUserByAuthID(t *testing.T) {
	m := NewMemoryStore()
	m.SeedUser(domain.User{ID: "user-1", AuthID: "auth|abc", Email: "u@example.com", Role: domain.RoleUser})

	user, found, err := m.GetUserByAuthID("auth|abc")
	if err != nil || !found {
		t.Fatalf("lookup = (%v, %v)", found, err)
	}
	if user.ID != "user-1" {
		t.Fatalf("user = %+v", user)
	}

	_, found, err = m.GetUserByAuthID("auth|unknown")
	if err != nil || found {
		t.Fatalf("unknown subject = (%v, %v), want miss", found, err)
	}
}

func TestDemoDealershipHours(t *testing.T) {
	m := demoStoreForTest(t)
	d, found, err := m.Dealership()
	if err != nil || !found {
		t.Fatalf("dealership = (%v, %v)", found, err)
	}
	if len(d.WorkingHours) != 7 {
		t.Fatalf("hours = %d rows, want 7", len(d.WorkingHours))
	}
	if d.WorkingHours[0].IsOpen {
		t.Fatalf("demo dealership should be closed on Sunday")
	}
}
