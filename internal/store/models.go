package store

import (
	"strconv"
	"time"

	"gorm.io/datatypes"

	"carhub/pkg/domain"
)

// GORM models used for persistence. Price is kept in its database-native
// decimal form and only converted to float64 at the domain boundary.
type CarModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Make         string `gorm:"size:64;not null;index"`
	Model        string `gorm:"size:64;not null"`
	Year         int    `gorm:"not null"`
	Price        string `gorm:"type:numeric(12,2);not null"`
	Mileage      int    `gorm:"not null"`
	Color        string `gorm:"size:32"`
	FuelType     string `gorm:"size:32;index"`
	Transmission string `gorm:"size:32;index"`
	BodyType     string `gorm:"size:32;index"`
	Seats        int
	Description  string
	Status       string `gorm:"size:16;not null;index"`
	Featured     bool
	Images       datatypes.JSONSlice[string]
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type UserModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	AuthID    string `gorm:"uniqueIndex;size:64;not null"`
	Email     string `gorm:"size:128;not null"`
	Name      string `gorm:"size:128"`
	Role      string `gorm:"size:16;not null"`
	CreatedAt time.Time
}

// SavedCarModel keys on (user_id, car_id) so the database enforces at most
// one wishlist row per pair.
type SavedCarModel struct {
	UserID  string    `gorm:"primaryKey;size:36"`
	CarID   string    `gorm:"primaryKey;size:36"`
	SavedAt time.Time `gorm:"not null;index"`
}

type TestDriveModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	CarID       string `gorm:"size:36;not null;index"`
	UserID      string `gorm:"size:36;not null;index"`
	Status      string `gorm:"size:16;not null"`
	BookingDate string `gorm:"size:10;not null"`
	StartTime   string `gorm:"size:5"`
	EndTime     string `gorm:"size:5"`
	Notes       string
	CreatedAt   time.Time `gorm:"not null;index"`
}

type DealershipModel struct {
	ID      string `gorm:"primaryKey;size:36"`
	Name    string `gorm:"size:128;not null"`
	Address string `gorm:"size:256"`
	Phone   string `gorm:"size:32"`
	Email   string `gorm:"size:128"`
}

type WorkingHourModel struct {
	ID           uint   `gorm:"primaryKey"`
	DealershipID string `gorm:"size:36;not null;index"`
	DayOfWeek    int    `gorm:"not null"`
	OpenTime     string `gorm:"size:5"`
	CloseTime    string `gorm:"size:5"`
	IsOpen       bool
}

func carToModel(c domain.Car) CarModel {
	return CarModel{
		ID:           c.ID,
		Make:         c.Make,
		Model:        c.Model,
		Year:         c.Year,
		Price:        strconv.FormatFloat(c.Price, 'f', 2, 64),
		Mileage:      c.Mileage,
		Color:        c.Color,
		FuelType:     c.FuelType,
		Transmission: c.Transmission,
		BodyType:     c.BodyType,
		Seats:        c.Seats,
		Description:  c.Description,
		Status:       string(c.Status),
		Featured:     c.Featured,
		Images:       datatypes.NewJSONSlice(c.Images),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// carFromModel converts a persisted record into its JSON-safe domain shape:
// the decimal price becomes a float64 and image/timestamp fields are plain
// primitives.
func carFromModel(m CarModel) domain.Car {
	price, _ := strconv.ParseFloat(m.Price, 64)
	return domain.Car{
		ID:           m.ID,
		Make:         m.Make,
		Model:        m.Model,
		Year:         m.Year,
		Price:        price,
		Mileage:      m.Mileage,
		Color:        m.Color,
		FuelType:     m.FuelType,
		Transmission: m.Transmission,
		BodyType:     m.BodyType,
		Seats:        m.Seats,
		Description:  m.Description,
		Status:       domain.CarStatus(m.Status),
		Featured:     m.Featured,
		Images:       []string(m.Images),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		AuthID:    m.AuthID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      domain.UserRole(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

func bookingToModel(b domain.TestDriveBooking) TestDriveModel {
	return TestDriveModel{
		ID:          b.ID,
		CarID:       b.CarID,
		UserID:      b.UserID,
		Status:      string(b.Status),
		BookingDate: b.BookingDate,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Notes:       b.Notes,
		CreatedAt:   b.CreatedAt,
	}
}

func bookingFromModel(m TestDriveModel) domain.TestDriveBooking {
	return domain.TestDriveBooking{
		ID:          m.ID,
		CarID:       m.CarID,
		UserID:      m.UserID,
		Status:      domain.BookingStatus(m.Status),
		BookingDate: m.BookingDate,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
	}
}
