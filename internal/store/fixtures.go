package store

import (
	"time"

	"carhub/pkg/domain"
)

var demoBase = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

// DemoCars is the fixed inventory served when demo mode is enabled. The set
// is deliberately small; demo-mode listing pages are effectively single-page.
func DemoCars() []domain.Car {
	specs := []struct {
		make, model  string
		year         int
		price        float64
		mileage      int
		color        string
		fuel         string
		transmission string
		body         string
		seats        int
		description  string
		featured     bool
	}{
		{"Honda", "Civic", 2023, 28500, 12000, "White", "Petrol", "Automatic", "Sedan", 5, "One-owner Civic with full service history.", true},
		{"Honda", "CR-V", 2022, 34900, 28000, "Black", "Hybrid", "Automatic", "SUV", 5, "Hybrid CR-V, dealer maintained.", false},
		{"Toyota", "Corolla", 2024, 26200, 4500, "Silver", "Petrol", "CVT", "Sedan", 5, "Nearly new Corolla with remaining factory warranty.", true},
		{"Toyota", "RAV4", 2021, 31800, 41000, "Blue", "Hybrid", "Automatic", "SUV", 5, "RAV4 hybrid, tow package fitted.", false},
		{"Ford", "Mustang", 2020, 42750, 33000, "Red", "Petrol", "Manual", "Coupe", 4, "5.0L GT, garage kept.", true},
		{"Ford", "F-150", 2022, 47300, 25000, "Gray", "Diesel", "Automatic", "Truck", 5, "F-150 crew cab with bedliner.", false},
		{"BMW", "330i", 2023, 46900, 15000, "Black", "Petrol", "Automatic", "Sedan", 5, "M Sport package, heads-up display.", false},
		{"Tesla", "Model 3", 2023, 38990, 18000, "White", "Electric", "Automatic", "Sedan", 5, "Long Range AWD, one owner.", true},
		{"Hyundai", "Tucson", 2022, 27400, 30000, "Green", "Petrol", "Automatic", "SUV", 5, "Tucson SEL, new tires.", false},
		{"Volkswagen", "Golf", 2021, 23100, 36000, "Blue", "Petrol", "Manual", "Hatchback", 5, "Golf TSI, two keys, clean report.", false},
	}

	cars := make([]domain.Car, 0, len(specs))
	for i, sp := range specs {
		created := demoBase.Add(time.Duration(i) * 24 * time.Hour)
		cars = append(cars, domain.Car{
			ID:           demoCarID(i),
			Make:         sp.make,
			Model:        sp.model,
			Year:         sp.year,
			Price:        sp.price,
			Mileage:      sp.mileage,
			Color:        sp.color,
			FuelType:     sp.fuel,
			Transmission: sp.transmission,
			BodyType:     sp.body,
			Seats:        sp.seats,
			Description:  sp.description,
			Status:       domain.CarAvailable,
			Featured:     sp.featured,
			Images:       []string{"/demo/cars/" + demoCarID(i) + "/1.jpg"},
			CreatedAt:    created,
			UpdatedAt:    created,
		})
	}
	return cars
}

func demoCarID(i int) string {
	return "demo-car-" + string(rune('a'+i))
}

// DemoDealership is the fixture dealership shown on detail pages in demo mode.
func DemoDealership() domain.Dealership {
	hours := make([]domain.WorkingHour, 0, 7)
	for day := 0; day < 7; day++ {
		h := domain.WorkingHour{DayOfWeek: day, OpenTime: "09:00", CloseTime: "18:00", IsOpen: true}
		if day == 0 {
			h.IsOpen = false
			h.OpenTime = ""
			h.CloseTime = ""
		}
		if day == 6 {
			h.CloseTime = "16:00"
		}
		hours = append(hours, h)
	}
	return domain.Dealership{
		ID:           "demo-dealership",
		Name:         "Carhub Motors",
		Address:      "1200 Harbor Blvd, Springfield",
		Phone:        "+1 555 010 4477",
		Email:        "sales@carhub.example",
		WorkingHours: hours,
	}
}
