package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"carhub/internal/cache"
	"carhub/internal/events"
	"carhub/internal/store"
	"carhub/pkg/domain"
	"carhub/pkg/storage"
)

const (
	defaultPageLimit  = 6
	bookingDateLayout = "2006-01-02"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DemoMode      bool
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SavedCacheTTL time.Duration

	// DisableFilterFallback turns the fail-soft fallback vocabulary on filter
	// discovery into an explicit soft error. Degradation stays on by default.
	DisableFilterFallback bool

	AMQPURL      string
	AMQPExchange string

	// Injected dependencies override construction from the fields above.
	Store   store.Store
	Cache   cache.SavedCarsCache
	Events  events.Publisher
	Objects storage.ObjectStore
}

// App is the core application service: listing search, wishlist, test drives,
// and dealership settings on top of an injected data source. Demo mode is an
// injected fixture store, not a global flag.
type App struct {
	store    store.Store
	cache    cache.SavedCarsCache
	events   events.Publisher
	objects  storage.ObjectStore
	demoMode bool
	degrade  bool
}

// New constructs the application. In demo mode every dependency defaults to
// its in-process stand-in; in live mode the database URL is required.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DemoMode {
			dataStore = store.NewDemoStore()
		} else {
			if cfg.DatabaseURL == "" {
				return nil, errors.New("database URL required outside demo mode")
			}
			gs, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
			dataStore = gs
		}
	}

	savedCache := cfg.Cache
	if savedCache == nil {
		if !cfg.DemoMode && cfg.RedisAddr != "" {
			savedCache = cache.NewRedisSavedCarsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.SavedCacheTTL)
		} else {
			savedCache = cache.NopCache{}
		}
	}

	publisher := cfg.Events
	if publisher == nil {
		if !cfg.DemoMode && cfg.AMQPURL != "" {
			p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				return nil, fmt.Errorf("init event publisher: %w", err)
			}
			publisher = p
		} else {
			publisher = events.NopPublisher{}
		}
	}

	return &App{
		store:    dataStore,
		cache:    savedCache,
		events:   publisher,
		objects:  cfg.Objects,
		demoMode: cfg.DemoMode,
		degrade:  !cfg.DisableFilterFallback,
	}, nil
}

// UserByAuthID resolves the authenticated subject to an application user.
func (a *App) UserByAuthID(authID string) (domain.User, bool, error) {
	user, ok, err := a.store.GetUserByAuthID(authID)
	if err != nil {
		return domain.User{}, false, fatalErr("look up user", err)
	}
	return user, ok, nil
}

// CarFilters returns the distinct search vocabulary over available inventory.
// In demo mode, or on store errors while degradation is enabled, it answers
// with the fixed fallback vocabulary instead of failing.
func (a *App) CarFilters() (domain.FilterOptions, error) {
	if a.demoMode {
		return FallbackFilterOptions(), nil
	}
	opts, err := a.store.FilterOptions()
	if err != nil {
		if a.degrade {
			slog.Warn("filter discovery degraded to fallback vocabulary", "err", err)
			return FallbackFilterOptions(), nil
		}
		return domain.FilterOptions{}, softErr("Error fetching car filters", err)
	}
	return opts, nil
}

// Pagination describes the window a search result was cut from.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// SearchCars runs the paginated listing search. Store errors degrade to an
// empty result set so a transient failure renders as "no results" rather than
// an error banner. The caller may be nil (anonymous browsing).
func (a *App) SearchCars(user *domain.User, q domain.SearchQuery) ([]domain.Car, Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.MinPrice < 0 {
		q.MinPrice = 0
	}

	page, err := a.store.SearchCars(q)
	if err != nil {
		slog.Warn("listing search degraded to empty results", "err", err)
		return []domain.Car{}, Pagination{Page: q.Page, Limit: q.Limit}, nil
	}

	if user != nil {
		savedIDs, err := a.store.SavedCarIDs(user.ID)
		if err != nil {
			slog.Warn("wishlist annotation skipped", "user_id", user.ID, "err", err)
		} else {
			for i := range page.Cars {
				_, page.Cars[i].Wishlisted = savedIDs[page.Cars[i].ID]
			}
		}
	}

	return page.Cars, Pagination{
		Total: page.Total,
		Page:  q.Page,
		Limit: q.Limit,
		Pages: int(math.Ceil(float64(page.Total) / float64(q.Limit))),
	}, nil
}

// TestDriveInfo is the detail-page context block: the caller's existing
// booking for this car, if any, plus the dealership to book with.
type TestDriveInfo struct {
	UserTestDrive *domain.TestDriveBooking `json:"userTestDrive"`
	Dealership    *domain.Dealership       `json:"dealership"`
}

// CarDetail is the single-listing response shape.
type CarDetail struct {
	domain.Car
	TestDriveInfo TestDriveInfo `json:"testDriveInfo"`
}

// CarByID assembles the detail page: the car, the caller's wishlist state and
// most recent active booking, and the dealership record. The independent
// lookups run concurrently.
func (a *App) CarByID(user *domain.User, carID string) (CarDetail, error) {
	var (
		car          domain.Car
		carOK        bool
		dealership   domain.Dealership
		dealershipOK bool
		booking      domain.TestDriveBooking
		bookingOK    bool
		savedIDs     map[string]struct{}
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		car, carOK, err = a.store.GetCar(carID)
		return err
	})
	g.Go(func() error {
		var err error
		dealership, dealershipOK, err = a.store.Dealership()
		return err
	})
	if user != nil {
		g.Go(func() error {
			var err error
			booking, bookingOK, err = a.store.ActiveBooking(user.ID, carID)
			return err
		})
		g.Go(func() error {
			var err error
			savedIDs, err = a.store.SavedCarIDs(user.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return CarDetail{}, softErr("Error fetching car details", err)
	}
	if !carOK {
		return CarDetail{}, ErrCarNotFound
	}

	_, car.Wishlisted = savedIDs[car.ID]
	detail := CarDetail{Car: car}
	if bookingOK {
		detail.TestDriveInfo.UserTestDrive = &booking
	}
	if dealershipOK {
		detail.TestDriveInfo.Dealership = &dealership
	}
	return detail, nil
}

// ToggleResult reports the wishlist state after a toggle.
type ToggleResult struct {
	Saved   bool   `json:"saved"`
	Message string `json:"message"`
}

// ToggleSavedCar flips wishlist membership for the caller and invalidates the
// cached saved-cars view. The toggle itself is atomic at the store layer.
func (a *App) ToggleSavedCar(user domain.User, carID string) (ToggleResult, error) {
	_, ok, err := a.store.GetCar(carID)
	if err != nil {
		return ToggleResult{}, fatalErr("Error toggling saved car", err)
	}
	if !ok {
		return ToggleResult{}, ErrCarNotFound
	}

	saved, err := a.store.ToggleSavedCar(user.ID, carID)
	if err != nil {
		return ToggleResult{}, fatalErr("Error toggling saved car", err)
	}
	a.cache.Invalidate(user.ID)

	res := ToggleResult{Saved: saved, Message: "Car removed from favorites"}
	if saved {
		res.Message = "Car added to favorites"
	}
	return res, nil
}

// SavedCars returns the caller's wishlist, newest first, through the view
// cache.
func (a *App) SavedCars(user domain.User) ([]domain.Car, error) {
	if cars, ok := a.cache.Get(user.ID); ok {
		return cars, nil
	}
	cars, err := a.store.SavedCars(user.ID)
	if err != nil {
		return nil, softErr(err.Error(), err)
	}
	if cars == nil {
		cars = []domain.Car{}
	}
	a.cache.Set(user.ID, cars)
	return cars, nil
}

// BookingRequest is the test-drive booking input.
type BookingRequest struct {
	CarID       string `json:"carId"`
	BookingDate string `json:"bookingDate"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Notes       string `json:"notes"`
}

type bookingEvent struct {
	BookingID   string `json:"bookingId"`
	CarID       string `json:"carId"`
	UserID      string `json:"userId"`
	Status      string `json:"status"`
	BookingDate string `json:"bookingDate"`
}

// BookTestDrive creates a PENDING booking for an available car. A caller with
// an active booking for the same car is rejected.
func (a *App) BookTestDrive(user domain.User, req BookingRequest) (domain.TestDriveBooking, error) {
	if req.CarID == "" {
		return domain.TestDriveBooking{}, invalidErr("carId is required")
	}
	date, err := time.Parse(bookingDateLayout, req.BookingDate)
	if err != nil {
		return domain.TestDriveBooking{}, invalidErr("bookingDate must be YYYY-MM-DD")
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if date.Before(today) {
		return domain.TestDriveBooking{}, invalidErr("bookingDate is in the past")
	}

	car, ok, err := a.store.GetCar(req.CarID)
	if err != nil {
		return domain.TestDriveBooking{}, fatalErr("look up car", err)
	}
	if !ok {
		return domain.TestDriveBooking{}, ErrCarNotFound
	}
	if car.Status != domain.CarAvailable {
		return domain.TestDriveBooking{}, invalidErr("Car is not available for test drives")
	}

	if existing, exists, err := a.store.ActiveBooking(user.ID, req.CarID); err != nil {
		return domain.TestDriveBooking{}, fatalErr("check existing booking", err)
	} else if exists && existing.Status != domain.BookingCompleted {
		return domain.TestDriveBooking{}, invalidErr("You already have a test drive booked for this car")
	}

	booking := domain.TestDriveBooking{
		ID:          uuid.NewString(),
		CarID:       req.CarID,
		UserID:      user.ID,
		Status:      domain.BookingPending,
		BookingDate: req.BookingDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Notes:       req.Notes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.CreateBooking(booking); err != nil {
		return domain.TestDriveBooking{}, fatalErr("create booking", err)
	}
	a.publishBookingEvent(events.BookingCreated, booking)
	return booking, nil
}

// CancelBooking lets the owner cancel a pending or confirmed booking.
func (a *App) CancelBooking(user domain.User, bookingID string) (domain.TestDriveBooking, error) {
	booking, ok, err := a.store.GetBooking(bookingID)
	if err != nil {
		return domain.TestDriveBooking{}, fatalErr("look up booking", err)
	}
	if !ok {
		return domain.TestDriveBooking{}, ErrBookingNotFound
	}
	if booking.UserID != user.ID {
		return domain.TestDriveBooking{}, ErrForbidden
	}
	if booking.Status != domain.BookingPending && booking.Status != domain.BookingConfirmed {
		return domain.TestDriveBooking{}, invalidErr("Booking can no longer be cancelled")
	}
	if err := a.store.SetBookingStatus(bookingID, domain.BookingCancelled); err != nil {
		return domain.TestDriveBooking{}, fatalErr("cancel booking", err)
	}
	booking.Status = domain.BookingCancelled
	a.publishBookingEvent(events.BookingCancelled, booking)
	return booking, nil
}

// UserBookings returns the caller's bookings, newest first.
func (a *App) UserBookings(user domain.User) ([]domain.TestDriveBooking, error) {
	bookings, err := a.store.BookingsByUser(user.ID)
	if err != nil {
		return nil, softErr(err.Error(), err)
	}
	if bookings == nil {
		bookings = []domain.TestDriveBooking{}
	}
	return bookings, nil
}

// DealershipInfo returns the dealership record with its ordered hours.
func (a *App) DealershipInfo() (domain.Dealership, error) {
	d, ok, err := a.store.Dealership()
	if err != nil {
		return domain.Dealership{}, softErr("Error fetching dealership info", err)
	}
	if !ok {
		return domain.Dealership{}, softErr("Dealership not configured", nil)
	}
	return d, nil
}

func (a *App) publishBookingEvent(routingKey string, b domain.TestDriveBooking) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	evt := bookingEvent{
		BookingID:   b.ID,
		CarID:       b.CarID,
		UserID:      b.UserID,
		Status:      string(b.Status),
		BookingDate: b.BookingDate,
	}
	if err := a.events.Publish(ctx, routingKey, evt); err != nil {
		slog.Warn("booking event publish failed", "routing_key", routingKey, "booking_id", b.ID, "err", err)
	}
}

// CarInput is the admin listing create/update payload.
type CarInput struct {
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Price        float64  `json:"price"`
	Mileage      int      `json:"mileage"`
	Color        string   `json:"color"`
	FuelType     string   `json:"fuelType"`
	Transmission string   `json:"transmission"`
	BodyType     string   `json:"bodyType"`
	Seats        int      `json:"seats"`
	Description  string   `json:"description"`
	Status       string   `json:"status"`
	Featured     bool     `json:"featured"`
	Images       []string `json:"images"`
}

func (in CarInput) validate() error {
	if strings.TrimSpace(in.Make) == "" || strings.TrimSpace(in.Model) == "" {
		return invalidErr("make and model are required")
	}
	if in.Year < 1900 {
		return invalidErr("year is invalid")
	}
	if in.Price < 0 {
		return invalidErr("price must be non-negative")
	}
	switch domain.CarStatus(in.Status) {
	case "", domain.CarAvailable, domain.CarUnavailable, domain.CarSold:
	default:
		return invalidErr("status is invalid")
	}
	return nil
}

// CreateCar adds a listing (admin).
func (a *App) CreateCar(in CarInput) (domain.Car, error) {
	if err := in.validate(); err != nil {
		return domain.Car{}, err
	}
	now := time.Now().UTC()
	car := domain.Car{
		ID:           uuid.NewString(),
		Make:         strings.TrimSpace(in.Make),
		Model:        strings.TrimSpace(in.Model),
		Year:         in.Year,
		Price:        in.Price,
		Mileage:      in.Mileage,
		Color:        in.Color,
		FuelType:     in.FuelType,
		Transmission: in.Transmission,
		BodyType:     in.BodyType,
		Seats:        in.Seats,
		Description:  in.Description,
		Status:       domain.CarAvailable,
		Featured:     in.Featured,
		Images:       in.Images,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Status != "" {
		car.Status = domain.CarStatus(in.Status)
	}
	if err := a.store.CreateCar(car); err != nil {
		return domain.Car{}, fatalErr("create car", err)
	}
	return car, nil
}

// UpdateCar replaces listing fields (admin).
func (a *App) UpdateCar(carID string, in CarInput) (domain.Car, error) {
	if err := in.validate(); err != nil {
		return domain.Car{}, err
	}
	car, ok, err := a.store.GetCar(carID)
	if err != nil {
		return domain.Car{}, fatalErr("look up car", err)
	}
	if !ok {
		return domain.Car{}, ErrCarNotFound
	}
	car.Make = strings.TrimSpace(in.Make)
	car.Model = strings.TrimSpace(in.Model)
	car.Year = in.Year
	car.Price = in.Price
	car.Mileage = in.Mileage
	car.Color = in.Color
	car.FuelType = in.FuelType
	car.Transmission = in.Transmission
	car.BodyType = in.BodyType
	car.Seats = in.Seats
	car.Description = in.Description
	car.Featured = in.Featured
	if in.Status != "" {
		car.Status = domain.CarStatus(in.Status)
	}
	if in.Images != nil {
		car.Images = in.Images
	}
	car.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateCar(car); err != nil {
		return domain.Car{}, fatalErr("update car", err)
	}
	return car, nil
}

// DeleteCar removes a listing (admin).
func (a *App) DeleteCar(carID string) error {
	_, ok, err := a.store.GetCar(carID)
	if err != nil {
		return fatalErr("look up car", err)
	}
	if !ok {
		return ErrCarNotFound
	}
	if err := a.store.DeleteCar(carID); err != nil {
		return fatalErr("delete car", err)
	}
	return nil
}

var allowedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// UploadCarImage stores a listing photo in object storage and records its key
// on the car (admin). Returns a presigned URL for immediate display.
func (a *App) UploadCarImage(carID, filename string, r io.Reader, size int64) (string, error) {
	if a.objects == nil {
		return "", invalidErr("image storage is not configured")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, allowed := allowedImageExtensions[ext]
	if !allowed {
		return "", invalidErr("unsupported image type")
	}
	_, ok, err := a.store.GetCar(carID)
	if err != nil {
		return "", fatalErr("look up car", err)
	}
	if !ok {
		return "", ErrCarNotFound
	}

	key := fmt.Sprintf("cars/%s/%s%s", carID, uuid.NewString(), ext)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return "", fatalErr("store image", err)
	}
	if err := a.store.AddCarImage(carID, key); err != nil {
		return "", fatalErr("record image", err)
	}
	url, err := a.objects.PresignGet(ctx, key, 15*time.Minute)
	if err != nil {
		return "", fatalErr("presign image", err)
	}
	return url, nil
}

// UpdateBookingStatus transitions a booking (admin).
func (a *App) UpdateBookingStatus(bookingID string, status domain.BookingStatus) (domain.TestDriveBooking, error) {
	switch status {
	case domain.BookingPending, domain.BookingConfirmed, domain.BookingCompleted,
		domain.BookingCancelled, domain.BookingNoShow:
	default:
		return domain.TestDriveBooking{}, invalidErr("status is invalid")
	}
	booking, ok, err := a.store.GetBooking(bookingID)
	if err != nil {
		return domain.TestDriveBooking{}, fatalErr("look up booking", err)
	}
	if !ok {
		return domain.TestDriveBooking{}, ErrBookingNotFound
	}
	if err := a.store.SetBookingStatus(bookingID, status); err != nil {
		return domain.TestDriveBooking{}, fatalErr("update booking", err)
	}
	booking.Status = status
	a.publishBookingEvent(events.BookingUpdated, booking)
	return booking, nil
}

// SaveDealership replaces the dealership record and hours (admin).
func (a *App) SaveDealership(d domain.Dealership) (domain.Dealership, error) {
	if strings.TrimSpace(d.Name) == "" {
		return domain.Dealership{}, invalidErr("name is required")
	}
	for _, h := range d.WorkingHours {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return domain.Dealership{}, invalidErr("dayOfWeek must be 0-6")
		}
	}
	if d.ID == "" {
		d.ID = "main"
	}
	if err := a.store.SaveDealership(d); err != nil {
		return domain.Dealership{}, fatalErr("save dealership", err)
	}
	return d, nil
}
