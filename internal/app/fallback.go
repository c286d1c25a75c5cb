package app

import "carhub/pkg/domain"

// FallbackFilterOptions is the fixed vocabulary the filter UI renders when
// the database is unreachable or demo mode is active. The filter endpoint
// never fails outright while degradation is enabled; it answers with this
// set instead.
func FallbackFilterOptions() domain.FilterOptions {
	return domain.FilterOptions{
		Makes:         []string{"BMW", "Ford", "Honda", "Hyundai", "Tesla", "Toyota"},
		BodyTypes:     []string{"Convertible", "Coupe", "Hatchback", "SUV", "Sedan", "Truck"},
		FuelTypes:     []string{"Diesel", "Electric", "Hybrid", "Petrol"},
		Transmissions: []string{"Automatic", "Manual"},
		PriceRange:    domain.PriceRange{Min: 0, Max: 100000},
	}
}
