package command

// RegisterProduct registers a temperature-sensitive product
type RegisterProduct struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Manufacturer     string  `json:"manufacturer"`
	MinTemperature   float64 `json:"min_temperature"`
	MaxTemperature   float64 `json:"max_temperature"`
	LogisticsPartner string  `json:"logistics_partner"`
}

// FundEscrow funds escrow for a product, creating a shipment
type FundEscrow struct {
	ProductID    string  `json:"product_id"`
	Consumer     string  `json:"consumer"`
	EscrowAmount float64 `json:"escrow_amount"`
}

// RecordCustodyEvent reports a chain-of-custody checkpoint for a shipment
type RecordCustodyEvent struct {
	ShipmentID  string  `json:"shipment_id"`
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	EventType   string  `json:"event_type"`
	Reporter    string  `json:"reporter"`
}

// ConfirmDelivery confirms delivery and releases escrow. ConfirmedBy is the
// authenticated caller, resolved by the API layer, never taken from the body.
type ConfirmDelivery struct {
	ShipmentID  string `json:"shipment_id"`
	ConfirmedBy string `json:"-"`
}
