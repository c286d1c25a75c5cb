package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carhub/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&CarModel{},
		&UserModel{},
		&SavedCarModel{},
		&TestDriveModel{},
		&DealershipModel{},
		&WorkingHourModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateCar inserts a new listing.
func (s *GormStore) CreateCar(car domain.Car) error {
	model := carToModel(car)
	return s.db.Create(&model).Error
}

// UpdateCar stores or replaces a listing.
func (s *GormStore) UpdateCar(car domain.Car) error {
	model := carToModel(car)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"make", "model", "year", "price", "mileage", "color", "fuel_type",
			"transmission", "body_type", "seats", "description", "status",
			"featured", "images", "updated_at",
		}),
	}).Create(&model).Error
}

// DeleteCar removes a listing together with its wishlist rows.
func (s *GormStore) DeleteCar(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&SavedCarModel{}, "car_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&CarModel{}, "id = ?", id).Error
	})
}

// GetCar retrieves a listing by ID.
func (s *GormStore) GetCar(id string) (domain.Car, bool, error) {
	var model CarModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Car{}, false, nil
		}
		return domain.Car{}, false, err
	}
	return carFromModel(model), true, nil
}

// AddCarImage appends an image reference to a listing.
func (s *GormStore) AddCarImage(carID, imageURL string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model CarModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", carID).Error; err != nil {
			return err
		}
		model.Images = append(model.Images, imageURL)
		model.UpdatedAt = time.Now().UTC()
		return tx.Model(&CarModel{}).Where("id = ?", carID).
			Updates(map[string]any{"images": model.Images, "updated_at": model.UpdatedAt}).Error
	})
}

// SearchCars runs the count and the page fetch inside one transaction so the
// reported totals match the returned page under concurrent writes.
func (s *GormStore) SearchCars(q domain.SearchQuery) (domain.SearchPage, error) {
	page := domain.SearchPage{Cars: []domain.Car{}}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		pred := searchPredicate(tx, q)
		if err := pred.Count(&page.Total).Error; err != nil {
			return err
		}
		offset := (q.Page - 1) * q.Limit
		var models []CarModel
		if err := searchPredicate(tx, q).
			Order(sortClause(q.SortBy)).
			Offset(offset).
			Limit(q.Limit).
			Find(&models).Error; err != nil {
			return err
		}
		page.Cars = make([]domain.Car, 0, len(models))
		for _, m := range models {
			page.Cars = append(page.Cars, carFromModel(m))
		}
		return nil
	})
	if err != nil {
		return domain.SearchPage{Cars: []domain.Car{}}, err
	}
	return page, nil
}

func searchPredicate(tx *gorm.DB, q domain.SearchQuery) *gorm.DB {
	pred := tx.Model(&CarModel{}).Where("status = ?", string(domain.CarAvailable))
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		pred = pred.Where(
			tx.Where("make ILIKE ?", pattern).
				Or("model ILIKE ?", pattern).
				Or("description ILIKE ?", pattern),
		)
	}
	if q.Make != "" {
		pred = pred.Where("make = ?", q.Make)
	}
	if q.BodyType != "" {
		pred = pred.Where("body_type = ?", q.BodyType)
	}
	if q.FuelType != "" {
		pred = pred.Where("fuel_type = ?", q.FuelType)
	}
	if q.Transmission != "" {
		pred = pred.Where("transmission = ?", q.Transmission)
	}
	pred = pred.Where("price >= ?", math.Max(q.MinPrice, 0))
	if q.MaxPrice > 0 {
		pred = pred.Where("price <= ?", q.MaxPrice)
	}
	return pred
}

func sortClause(sortBy string) string {
	switch sortBy {
	case domain.SortPriceAsc:
		return "price ASC"
	case domain.SortPriceDesc:
		return "price DESC"
	default:
		return "created_at DESC"
	}
}

// FilterOptions returns the distinct filter vocabulary and price range over
// available inventory.
func (s *GormStore) FilterOptions() (domain.FilterOptions, error) {
	opts := domain.FilterOptions{}
	available := func() *gorm.DB {
		return s.db.Model(&CarModel{}).Where("status = ?", string(domain.CarAvailable))
	}
	if err := available().Distinct().Order("make ASC").Pluck("make", &opts.Makes).Error; err != nil {
		return opts, err
	}
	if err := available().Distinct().Order("body_type ASC").Pluck("body_type", &opts.BodyTypes).Error; err != nil {
		return opts, err
	}
	if err := available().Distinct().Order("fuel_type ASC").Pluck("fuel_type", &opts.FuelTypes).Error; err != nil {
		return opts, err
	}
	if err := available().Distinct().Order("transmission ASC").Pluck("transmission", &opts.Transmissions).Error; err != nil {
		return opts, err
	}
	var bounds struct {
		Min float64
		Max float64
	}
	if err := available().
		Select("COALESCE(MIN(price), 0) AS min, COALESCE(MAX(price), 0) AS max").
		Scan(&bounds).Error; err != nil {
		return opts, err
	}
	opts.PriceRange = domain.PriceRange{Min: bounds.Min, Max: bounds.Max}
	return opts, nil
}

// GetUserByAuthID looks up the application user for an auth-provider subject.
func (s *GormStore) GetUserByAuthID(authID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "auth_id = ?", authID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ToggleSavedCar flips wishlist membership in a single transaction:
// delete-if-exists, else insert. A duplicate-key error from a concurrent
// insert is reconciled as "already saved" instead of surfacing.
func (s *GormStore) ToggleSavedCar(userID, carID string) (bool, error) {
	saved := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&SavedCarModel{}, "user_id = ? AND car_id = ?", userID, carID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			saved = false
			return nil
		}
		row := SavedCarModel{UserID: userID, CarID: carID, SavedAt: time.Now().UTC()}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				saved = true
				return nil
			}
			return err
		}
		saved = true
		return nil
	})
	return saved, err
}

// SavedCarIDs returns the caller's full wishlist as a membership set, fetched
// once so listing pages annotate rows without per-row lookups.
func (s *GormStore) SavedCarIDs(userID string) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.Model(&SavedCarModel{}).Where("user_id = ?", userID).Pluck("car_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// SavedCars returns wishlist cars ordered by saved time descending.
func (s *GormStore) SavedCars(userID string) ([]domain.Car, error) {
	var models []CarModel
	err := s.db.Model(&CarModel{}).
		Joins("JOIN saved_car_models ON saved_car_models.car_id = car_models.id").
		Where("saved_car_models.user_id = ?", userID).
		Order("saved_car_models.saved_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	cars := make([]domain.Car, 0, len(models))
	for _, m := range models {
		car := carFromModel(m)
		car.Wishlisted = true
		cars = append(cars, car)
	}
	return cars, nil
}

// CreateBooking records a test-drive request.
func (s *GormStore) CreateBooking(b domain.TestDriveBooking) error {
	model := bookingToModel(b)
	return s.db.Create(&model).Error
}

// GetBooking retrieves a booking by ID.
func (s *GormStore) GetBooking(id string) (domain.TestDriveBooking, bool, error) {
	var model TestDriveModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TestDriveBooking{}, false, nil
		}
		return domain.TestDriveBooking{}, false, err
	}
	return bookingFromModel(model), true, nil
}

// ActiveBooking returns the most recent non-cancelled booking by this user
// for this car, if any.
func (s *GormStore) ActiveBooking(userID, carID string) (domain.TestDriveBooking, bool, error) {
	statuses := make([]string, 0, len(domain.ActiveBookingStatuses))
	for _, st := range domain.ActiveBookingStatuses {
		statuses = append(statuses, string(st))
	}
	var model TestDriveModel
	err := s.db.
		Where("user_id = ? AND car_id = ? AND status IN ?", userID, carID, statuses).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TestDriveBooking{}, false, nil
		}
		return domain.TestDriveBooking{}, false, err
	}
	return bookingFromModel(model), true, nil
}

// BookingsByUser returns the caller's bookings, newest first.
func (s *GormStore) BookingsByUser(userID string) ([]domain.TestDriveBooking, error) {
	var models []TestDriveModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.TestDriveBooking, 0, len(models))
	for _, m := range models {
		res = append(res, bookingFromModel(m))
	}
	return res, nil
}

// SetBookingStatus updates booking state.
func (s *GormStore) SetBookingStatus(id string, status domain.BookingStatus) error {
	return s.db.Model(&TestDriveModel{}).Where("id = ?", id).
		Update("status", string(status)).Error
}

// Dealership returns the first dealership record with its ordered hours.
func (s *GormStore) Dealership() (domain.Dealership, bool, error) {
	var model DealershipModel
	if err := s.db.Order("id ASC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Dealership{}, false, nil
		}
		return domain.Dealership{}, false, err
	}
	var hours []WorkingHourModel
	if err := s.db.Where("dealership_id = ?", model.ID).Order("day_of_week ASC").Find(&hours).Error; err != nil {
		return domain.Dealership{}, false, err
	}
	d := domain.Dealership{
		ID:      model.ID,
		Name:    model.Name,
		Address: model.Address,
		Phone:   model.Phone,
		Email:   model.Email,
	}
	d.WorkingHours = make([]domain.WorkingHour, 0, len(hours))
	for _, h := range hours {
		d.WorkingHours = append(d.WorkingHours, domain.WorkingHour{
			DayOfWeek: h.DayOfWeek,
			OpenTime:  h.OpenTime,
			CloseTime: h.CloseTime,
			IsOpen:    h.IsOpen,
		})
	}
	return d, true, nil
}

// SaveDealership upserts the dealership record and replaces its hours.
func (s *GormStore) SaveDealership(d domain.Dealership) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := DealershipModel{
			ID:      d.ID,
			Name:    d.Name,
			Address: d.Address,
			Phone:   d.Phone,
			Email:   d.Email,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "address", "phone", "email"}),
		}).Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Delete(&WorkingHourModel{}, "dealership_id = ?", d.ID).Error; err != nil {
			return err
		}
		for _, h := range d.WorkingHours {
			row := WorkingHourModel{
				DealershipID: d.ID,
				DayOfWeek:    h.DayOfWeek,
				OpenTime:     h.OpenTime,
				CloseTime:    h.CloseTime,
				IsOpen:       h.IsOpen,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
