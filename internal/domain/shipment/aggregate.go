package shipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/example/coldchain-ledger/internal/domain/aggregate"
	"github.com/example/coldchain-ledger/internal/domain/product"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
	"github.com/example/coldchain-ledger/internal/oracle"
	"github.com/google/uuid"
)

const AggregateType = "Shipment"

type Status string

const (
	StatusPending     Status = "pending"
	StatusInTransit   Status = "in_transit"
	StatusCompromised Status = "compromised"
	StatusDelivered   Status = "delivered"
	StatusConfirmed   Status = "confirmed"
)

type EventType string

const (
	EventTypePickup   EventType = "pickup"
	EventTypeTransit  EventType = "transit"
	EventTypeDelivery EventType = "delivery"
)

// Valid reports whether the event type is a known custody checkpoint kind
func (t EventType) Valid() bool {
	switch t {
	case EventTypePickup, EventTypeTransit, EventTypeDelivery:
		return true
	}
	return false
}

var (
	ErrShipmentNotFound      = errors.New("shipment not found")
	ErrInvalidEscrowAmount   = errors.New("escrow amount must be a non-negative number")
	ErrInvalidEventType      = errors.New("invalid custody event type")
	ErrShipmentClosed        = errors.New("shipment no longer accepts custody events")
	ErrNotDelivered          = errors.New("shipment must be delivered before confirmation")
	ErrEscrowAlreadyReleased = errors.New("escrow has already been released")
)

// validTransitions defines allowed state transitions. compromised and
// confirmed have no outgoing edges: the former is a permanent compliance
// finding, the latter is terminal.
var validTransitions = map[Status][]Status{
	StatusPending:     {StatusInTransit, StatusCompromised, StatusDelivered},
	StatusInTransit:   {StatusCompromised, StatusDelivered},
	StatusCompromised: {},
	StatusDelivered:   {StatusConfirmed},
	StatusConfirmed:   {},
}

// CustodyEvent is one immutable chain-of-custody checkpoint. Temperature is
// the partner-reported value, retained for audit only; validity is always
// judged against VerifiedTemperature.
type CustodyEvent struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	Location            string    `json:"location"`
	Temperature         float64   `json:"temperature"`
	VerifiedTemperature float64   `json:"verified_temperature"`
	Reporter            string    `json:"reporter"`
	EventType           EventType `json:"event_type"`
	IsTemperatureValid  bool      `json:"is_temperature_valid"`
}

// Shipment is the escrow-backed shipment aggregate. It owns the status state
// machine and the append-only custody event log.
type Shipment struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	Product          product.Product `json:"product"`
	Manufacturer     string          `json:"manufacturer"`
	LogisticsPartner string          `json:"logistics_partner"`
	Consumer         string          `json:"consumer"`
	Status           Status          `json:"status"`
	EscrowAmount     float64         `json:"escrow_amount"`
	EscrowReleased   bool            `json:"escrow_released"`
	Events           []CustodyEvent  `json:"events"`
	CreatedAt        time.Time       `json:"created_at"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	ConfirmedBy      string          `json:"confirmed_by,omitempty"`
	Version          int             `json:"version"`
}

// Aggregate interface implementation
func (sh *Shipment) GetID() string    { return sh.ID }
func (sh *Shipment) GetVersion() int  { return sh.Version }
func (sh *Shipment) SetVersion(v int) { sh.Version = v }

// CanTransitionTo checks if the shipment can transition to the target status
func (sh *Shipment) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[sh.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// CanAcceptEvents reports whether custody events may still be recorded.
// Compromised shipments reject further events: the finding is permanent and
// the custody log up to that point is the audit record.
func (sh *Shipment) CanAcceptEvents() bool {
	return sh.Status != StatusConfirmed && sh.Status != StatusCompromised
}

// confirmError returns the error for an invalid delivery confirmation
func (sh *Shipment) confirmError() error {
	switch sh.Status {
	case StatusConfirmed:
		return ErrEscrowAlreadyReleased
	default:
		return fmt.Errorf("%w: shipment is %s", ErrNotDelivered, sh.Status)
	}
}

// NextStatus derives the status after a custody event is recorded against the
// current status. Precedence, first match wins: an out-of-band verified
// reading compromises the shipment before any delivery handling; a delivery
// event delivers; the first event moves a pending shipment in transit.
func NextStatus(current Status, eventType EventType, temperatureValid bool) Status {
	switch {
	case !temperatureValid && current != StatusCompromised:
		return StatusCompromised
	case eventType == EventTypeDelivery && current != StatusCompromised:
		return StatusDelivered
	case current == StatusPending:
		return StatusInTransit
	default:
		return current
	}
}

// ApplyEvent applies a single event to the shipment state (implements aggregate.Aggregate)
func (sh *Shipment) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventEscrowFunded:
		var data EscrowFunded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		sh.ID = data.ShipmentID
		sh.ProductID = data.ProductID
		sh.Product = data.Product
		sh.Manufacturer = data.Manufacturer
		sh.LogisticsPartner = data.LogisticsPartner
		sh.Consumer = data.Consumer
		sh.Status = StatusPending
		sh.EscrowAmount = data.EscrowAmount
		sh.EscrowReleased = false
		sh.CreatedAt = data.FundedAt

	case EventCustodyEventRecorded:
		var data CustodyEventRecorded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		sh.Events = append(sh.Events, data.Event)
		next := NextStatus(sh.Status, data.Event.EventType, data.Event.IsTemperatureValid)
		if next == StatusDelivered && sh.Status != StatusDelivered {
			deliveredAt := data.Event.Timestamp
			sh.DeliveredAt = &deliveredAt
		}
		sh.Status = next

	case EventEscrowReleased:
		var data EscrowReleased
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		sh.Status = StatusConfirmed
		sh.EscrowReleased = true
		confirmedAt := data.ConfirmedAt
		sh.ConfirmedAt = &confirmedAt
		sh.ConfirmedBy = data.ConfirmedBy
	}
	sh.Version = event.Version
	return nil
}

// Service owns shipment lifecycle operations: escrow funding, custody event
// recording with oracle verification, and delivery confirmation.
type Service struct {
	eventStore    store.EventStoreInterface
	temps         oracle.TemperatureSource
	oracleTimeout time.Duration
}

func NewService(es store.EventStoreInterface, temps oracle.TemperatureSource) *Service {
	return &Service{
		eventStore:    es,
		temps:         temps,
		oracleTimeout: 5 * time.Second,
	}
}

// loadShipment loads a shipment by replaying events, using snapshot if available
func (s *Service) loadShipment(ctx context.Context, shipmentID string) (*Shipment, error) {
	shipment, found, err := aggregate.LoadAggregate(ctx, s.eventStore, shipmentID, func() *Shipment {
		return &Shipment{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrShipmentNotFound
	}
	return shipment, nil
}

// Fund creates a shipment in escrow for an existing product. The product is
// snapshotted into the shipment so later registry changes can never alter it.
func (s *Service) Fund(ctx context.Context, prod *product.Product, consumer string, amount float64) (*Shipment, error) {
	if prod == nil {
		return nil, product.ErrProductNotFound
	}
	if amount < 0 || math.IsNaN(amount) {
		return nil, ErrInvalidEscrowAmount
	}

	shipmentID := uuid.New().String()

	event := EscrowFunded{
		ShipmentID:       shipmentID,
		ProductID:        prod.ID,
		Product:          *prod,
		Manufacturer:     prod.Manufacturer,
		LogisticsPartner: prod.LogisticsPartner,
		Consumer:         consumer,
		EscrowAmount:     amount,
		FundedAt:         time.Now(),
	}

	storedEvent, err := s.eventStore.Append(ctx, shipmentID, AggregateType, EventEscrowFunded, 0, event)
	if err != nil {
		return nil, err
	}

	shipment := &Shipment{}
	if err := shipment.ApplyEvent(*storedEvent); err != nil {
		return nil, err
	}
	return shipment, nil
}

// maxAppendRetries bounds reload-and-retry after a version conflict. Each
// retry re-runs the guard checks against a fresh load, so a conflict caused
// by a closing shipment surfaces as the domain error, not as the conflict.
const maxAppendRetries = 3

// RecordEvent appends a chain-of-custody event and derives the next status.
// The partner-reported temperature is untrusted; the oracle reading decides
// validity, degrading to a deterministic estimate when the oracle fails. The
// oracle round-trip happens before the append and is bounded by a timeout, so
// the event log is never held open across slow network I/O.
//
// The append is conditional on the version the guard checks were made
// against: a concurrent writer (another checkpoint, a compromise, a
// confirmation) forces a reload and a re-check instead of landing an event
// on a shipment that already closed.
func (s *Service) RecordEvent(ctx context.Context, shipmentID, location string, reportedTemperature float64, eventType EventType, reporter string) (*CustodyEvent, *Shipment, error) {
	if !eventType.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
	}

	// The verified temperature depends only on the location and the product
	// band snapshotted at funding, so one oracle round-trip covers every
	// retry attempt.
	var verified float64
	verifiedKnown := false

	for attempt := 0; ; attempt++ {
		shipment, err := s.loadShipment(ctx, shipmentID)
		if err != nil {
			return nil, nil, err
		}
		if !shipment.CanAcceptEvents() {
			return nil, nil, fmt.Errorf("%w: shipment is %s", ErrShipmentClosed, shipment.Status)
		}

		if !verifiedKnown {
			oracleCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
			verified = oracle.Resolve(oracleCtx, s.temps, location)
			cancel()
			verifiedKnown = true
		}

		custodyEvent := CustodyEvent{
			ID:                  uuid.New().String(),
			Timestamp:           time.Now(),
			Location:            location,
			Temperature:         reportedTemperature,
			VerifiedTemperature: verified,
			Reporter:            reporter,
			EventType:           eventType,
			IsTemperatureValid:  shipment.Product.WithinBand(verified),
		}

		event := CustodyEventRecorded{
			ShipmentID: shipment.ID,
			Event:      custodyEvent,
		}

		storedEvent, err := s.eventStore.Append(ctx, shipment.ID, AggregateType, EventCustodyEventRecorded, shipment.Version, event)
		if errors.Is(err, store.ErrVersionConflict) && attempt < maxAppendRetries {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if err := shipment.ApplyEvent(*storedEvent); err != nil {
			return nil, nil, err
		}

		if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, shipment, AggregateType); err != nil {
			log.Printf("[Shipment] Failed to create snapshot for shipment %s: %v", shipment.ID, err)
		}

		return &custodyEvent, shipment, nil
	}
}

// ConfirmDelivery releases escrow for a delivered shipment. Release happens
// at most once: the release event is appended at the exact version the
// delivered check was made against, so of two racing confirmations one wins
// and the other reloads, sees confirmed, and fails with
// ErrEscrowAlreadyReleased.
func (s *Service) ConfirmDelivery(ctx context.Context, shipmentID, confirmedBy string) (*Shipment, error) {
	for attempt := 0; ; attempt++ {
		shipment, err := s.loadShipment(ctx, shipmentID)
		if err != nil {
			return nil, err
		}

		if !shipment.CanTransitionTo(StatusConfirmed) {
			return nil, shipment.confirmError()
		}

		event := EscrowReleased{
			ShipmentID:  shipment.ID,
			ConfirmedAt: time.Now(),
			ConfirmedBy: confirmedBy,
		}

		storedEvent, err := s.eventStore.Append(ctx, shipment.ID, AggregateType, EventEscrowReleased, shipment.Version, event)
		if errors.Is(err, store.ErrVersionConflict) && attempt < maxAppendRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := shipment.ApplyEvent(*storedEvent); err != nil {
			return nil, err
		}

		if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, shipment, AggregateType); err != nil {
			log.Printf("[Shipment] Failed to create snapshot for shipment %s: %v", shipment.ID, err)
		}

		return shipment, nil
	}
}

// Get loads a shipment by id
func (s *Service) Get(ctx context.Context, shipmentID string) (*Shipment, error) {
	return s.loadShipment(ctx, shipmentID)
}
