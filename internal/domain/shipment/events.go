package shipment

import (
	"time"

	"github.com/example/coldchain-ledger/internal/domain/product"
)

const (
	EventEscrowFunded         = "EscrowFunded"
	EventCustodyEventRecorded = "CustodyEventRecorded"
	EventEscrowReleased       = "EscrowReleased"
)

// EscrowFunded is emitted when a consumer funds escrow for a product,
// creating the shipment. This is the only shipment-creation path.
type EscrowFunded struct {
	ShipmentID       string          `json:"shipment_id"`
	ProductID        string          `json:"product_id"`
	Product          product.Product `json:"product"` // snapshot at funding time
	Manufacturer     string          `json:"manufacturer"`
	LogisticsPartner string          `json:"logistics_partner"`
	Consumer         string          `json:"consumer"`
	EscrowAmount     float64         `json:"escrow_amount"`
	FundedAt         time.Time       `json:"funded_at"`
}

// CustodyEventRecorded is emitted when a logistics partner reports a
// chain-of-custody checkpoint. The resulting status is re-derived on replay
// from the event itself, never stored.
type CustodyEventRecorded struct {
	ShipmentID string       `json:"shipment_id"`
	Event      CustodyEvent `json:"event"`
}

// EscrowReleased is emitted when the consumer confirms delivery; it carries
// the delivered->confirmed transition and the one-way fund release.
// ConfirmedBy is the authenticated consumer's user id, empty when the
// deployment runs without auth.
type EscrowReleased struct {
	ShipmentID  string    `json:"shipment_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	ConfirmedBy string    `json:"confirmed_by,omitempty"`
}
