package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"carhub/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs demo mode and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	cars       map[string]domain.Car
	carOrder   []string
	users      map[string]domain.User // key: user ID
	authIndex  map[string]string      // auth subject -> user ID
	saved      map[string]map[string]time.Time
	bookings   map[string]domain.TestDriveBooking
	dealership *domain.Dealership
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cars:      make(map[string]domain.Car),
		users:     make(map[string]domain.User),
		authIndex: make(map[string]string),
		saved:     make(map[string]map[string]time.Time),
		bookings:  make(map[string]domain.TestDriveBooking),
	}
}

// NewDemoStore returns a store pre-seeded with the demo fixture inventory
// and dealership. Demo mode injects this instead of the database.
func NewDemoStore() *MemoryStore {
	m := NewMemoryStore()
	for _, car := range DemoCars() {
		_ = m.CreateCar(car)
	}
	d := DemoDealership()
	_ = m.SaveDealership(d)
	return m
}

// SeedUser registers a user record (auth sync stand-in for demo and tests).
func (m *MemoryStore) SeedUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.authIndex[u.AuthID] = u.ID
}

// CreateCar stores a listing and tracks insertion order.
func (m *MemoryStore) CreateCar(car domain.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.cars[car.ID]; !exists {
		m.carOrder = append(m.carOrder, car.ID)
	}
	m.cars[car.ID] = car
	return nil
}

// UpdateCar replaces a listing.
func (m *MemoryStore) UpdateCar(car domain.Car) error {
	return m.CreateCar(car)
}

// DeleteCar removes a listing and its wishlist rows.
func (m *MemoryStore) DeleteCar(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cars, id)
	filtered := m.carOrder[:0]
	for _, item := range m.carOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.carOrder = filtered
	for _, byCar := range m.saved {
		delete(byCar, id)
	}
	return nil
}

// GetCar retrieves a listing by ID.
func (m *MemoryStore) GetCar(id string) (domain.Car, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	car, ok := m.cars[id]
	return car, ok, nil
}

// AddCarImage appends an image reference.
func (m *MemoryStore) AddCarImage(carID, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	car, ok := m.cars[carID]
	if !ok {
		return nil
	}
	car.Images = append(car.Images, imageURL)
	car.UpdatedAt = time.Now().UTC()
	m.cars[carID] = car
	return nil
}

// SearchCars applies the same predicate, sort, and pagination semantics as
// the database store, over the fixture set.
func (m *MemoryStore) SearchCars(q domain.SearchQuery) (domain.SearchPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]domain.Car, 0, len(m.carOrder))
	for _, id := range m.carOrder {
		car, ok := m.cars[id]
		if !ok || !matchesQuery(car, q) {
			continue
		}
		matched = append(matched, car)
	}

	switch q.SortBy {
	case domain.SortPriceAsc:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price < matched[j].Price })
	case domain.SortPriceDesc:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price > matched[j].Price })
	default:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	}

	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page := make([]domain.Car, end-start)
	copy(page, matched[start:end])
	return domain.SearchPage{Cars: page, Total: total}, nil
}

func matchesQuery(car domain.Car, q domain.SearchQuery) bool {
	if car.Status != domain.CarAvailable {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(car.Make), needle) &&
			!strings.Contains(strings.ToLower(car.Model), needle) &&
			!strings.Contains(strings.ToLower(car.Description), needle) {
			return false
		}
	}
	if q.Make != "" && car.Make != q.Make {
		return false
	}
	if q.BodyType != "" && car.BodyType != q.BodyType {
		return false
	}
	if q.FuelType != "" && car.FuelType != q.FuelType {
		return false
	}
	if q.Transmission != "" && car.Transmission != q.Transmission {
		return false
	}
	if car.Price < q.MinPrice {
		return false
	}
	if q.MaxPrice > 0 && car.Price > q.MaxPrice {
		return false
	}
	return true
}

// FilterOptions computes the distinct vocabulary over available fixtures.
func (m *MemoryStore) FilterOptions() (domain.FilterOptions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	makes := map[string]struct{}{}
	bodies := map[string]struct{}{}
	fuels := map[string]struct{}{}
	transmissions := map[string]struct{}{}
	opts := domain.FilterOptions{}
	first := true
	for _, car := range m.cars {
		if car.Status != domain.CarAvailable {
			continue
		}
		makes[car.Make] = struct{}{}
		bodies[car.BodyType] = struct{}{}
		fuels[car.FuelType] = struct{}{}
		transmissions[car.Transmission] = struct{}{}
		if first || car.Price < opts.PriceRange.Min {
			opts.PriceRange.Min = car.Price
		}
		if first || car.Price > opts.PriceRange.Max {
			opts.PriceRange.Max = car.Price
		}
		first = false
	}
	opts.Makes = sortedKeys(makes)
	opts.BodyTypes = sortedKeys(bodies)
	opts.FuelTypes = sortedKeys(fuels)
	opts.Transmissions = sortedKeys(transmissions)
	return opts, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetUserByAuthID resolves an auth-provider subject to the application user.
func (m *MemoryStore) GetUserByAuthID(authID string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.authIndex[authID]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// ToggleSavedCar flips wishlist membership under the store lock, so two
// concurrent toggles for the same pair serialize.
func (m *MemoryStore) ToggleSavedCar(userID, carID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCar, ok := m.saved[userID]
	if !ok {
		byCar = make(map[string]time.Time)
		m.saved[userID] = byCar
	}
	if _, exists := byCar[carID]; exists {
		delete(byCar, carID)
		return false, nil
	}
	byCar[carID] = time.Now().UTC()
	return true, nil
}

// SavedCarIDs returns the caller's wishlist as a membership set.
func (m *MemoryStore) SavedCarIDs(userID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{}, len(m.saved[userID]))
	for id := range m.saved[userID] {
		set[id] = struct{}{}
	}
	return set, nil
}

// SavedCars returns wishlist cars ordered by saved time descending.
func (m *MemoryStore) SavedCars(userID string) ([]domain.Car, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type entry struct {
		car     domain.Car
		savedAt time.Time
	}
	entries := make([]entry, 0, len(m.saved[userID]))
	for id, at := range m.saved[userID] {
		car, ok := m.cars[id]
		if !ok {
			continue
		}
		car.Wishlisted = true
		entries = append(entries, entry{car: car, savedAt: at})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].savedAt.After(entries[j].savedAt) })
	cars := make([]domain.Car, 0, len(entries))
	for _, e := range entries {
		cars = append(cars, e.car)
	}
	return cars, nil
}

// CreateBooking records a test-drive request.
func (m *MemoryStore) CreateBooking(b domain.TestDriveBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
	return nil
}

// GetBooking retrieves a booking by ID.
func (m *MemoryStore) GetBooking(id string) (domain.TestDriveBooking, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	return b, ok, nil
}

// ActiveBooking returns the most recent non-cancelled booking for the pair.
func (m *MemoryStore) ActiveBooking(userID, carID string) (domain.TestDriveBooking, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest domain.TestDriveBooking
		found  bool
	)
	for _, b := range m.bookings {
		if b.UserID != userID || b.CarID != carID || !isActiveStatus(b.Status) {
			continue
		}
		if !found || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
			found = true
		}
	}
	return latest, found, nil
}

func isActiveStatus(status domain.BookingStatus) bool {
	for _, st := range domain.ActiveBookingStatuses {
		if st == status {
			return true
		}
	}
	return false
}

// BookingsByUser returns the caller's bookings, newest first.
func (m *MemoryStore) BookingsByUser(userID string) ([]domain.TestDriveBooking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.TestDriveBooking, 0)
	for _, b := range m.bookings {
		if b.UserID == userID {
			res = append(res, b)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

// SetBookingStatus updates booking state.
func (m *MemoryStore) SetBookingStatus(id string, status domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	b.Status = status
	m.bookings[id] = b
	return nil
}

// Dealership returns the dealership record, when configured.
func (m *MemoryStore) Dealership() (domain.Dealership, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dealership == nil {
		return domain.Dealership{}, false, nil
	}
	return *m.dealership, true, nil
}

// SaveDealership replaces the dealership record.
func (m *MemoryStore) SaveDealership(d domain.Dealership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dealership = &d
	return nil
}
