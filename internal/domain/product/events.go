package product

import "time"

const (
	EventProductRegistered = "ProductRegistered"
)

// ProductRegistered is emitted when a manufacturer registers a new
// temperature-sensitive product
type ProductRegistered struct {
	ProductID        string    `json:"product_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Manufacturer     string    `json:"manufacturer"`
	MinTemperature   float64   `json:"min_temperature"`
	MaxTemperature   float64   `json:"max_temperature"`
	LogisticsPartner string    `json:"logistics_partner"`
	RegisteredAt     time.Time `json:"registered_at"`
}
