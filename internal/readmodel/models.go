package readmodel

import "time"

// ProductReadModel is the read model for registered cold-chain products
type ProductReadModel struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Manufacturer     string    `json:"manufacturer"`
	MinTemperature   float64   `json:"min_temperature"`
	MaxTemperature   float64   `json:"max_temperature"`
	LogisticsPartner string    `json:"logistics_partner"`
	RegisteredAt     time.Time `json:"registered_at"`
}

// CustodyEventReadModel represents one chain-of-custody checkpoint
type CustodyEventReadModel struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	Location            string    `json:"location"`
	Temperature         float64   `json:"temperature"`
	VerifiedTemperature float64   `json:"verified_temperature"`
	Reporter            string    `json:"reporter"`
	EventType           string    `json:"event_type"`
	IsTemperatureValid  bool      `json:"is_temperature_valid"`
}

// ShipmentReadModel is the read model for shipments served to dashboards
type ShipmentReadModel struct {
	ID               string                  `json:"id"`
	ProductID        string                  `json:"product_id"`
	Product          ProductReadModel        `json:"product"`
	Manufacturer     string                  `json:"manufacturer"`
	LogisticsPartner string                  `json:"logistics_partner"`
	Consumer         string                  `json:"consumer"`
	Status           string                  `json:"status"`
	EscrowAmount     float64                 `json:"escrow_amount"`
	EscrowReleased   bool                    `json:"escrow_released"`
	Events           []CustodyEventReadModel `json:"events"`
	CreatedAt        time.Time               `json:"created_at"`
	DeliveredAt      *time.Time              `json:"delivered_at,omitempty"`
	ConfirmedAt      *time.Time              `json:"confirmed_at,omitempty"`
	ConfirmedBy      string                  `json:"confirmed_by,omitempty"`
}

// Clone returns a copy with its own events slice, so holders of the original
// never observe later projector writes.
func (s *ShipmentReadModel) Clone() *ShipmentReadModel {
	c := *s
	c.Events = make([]CustodyEventReadModel, len(s.Events))
	copy(c.Events, s.Events)
	return &c
}

// UserReadModel is the read model for ledger parties
type UserReadModel struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// PasswordHash must survive read-store persistence; handlers expose users
	// through response structs that omit it.
	PasswordHash string    `json:"password_hash,omitempty"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Address      string    `json:"address"`
	CreatedAt    time.Time `json:"created_at"`
}
