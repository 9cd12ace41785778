package product

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/coldchain-ledger/internal/domain/aggregate"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Product"

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrInvalidName            = errors.New("product name is required")
	ErrInvalidTemperatureBand = errors.New("minimum temperature must not exceed maximum temperature")
)

// Product is an immutable cold-chain product specification. There is no
// update or delete operation; shipments snapshot the product at funding time.
type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Manufacturer     string    `json:"manufacturer"`
	MinTemperature   float64   `json:"min_temperature"`
	MaxTemperature   float64   `json:"max_temperature"`
	LogisticsPartner string    `json:"logistics_partner"`
	RegisteredAt     time.Time `json:"registered_at"`
	Version          int       `json:"version"`
}

// Aggregate interface implementation
func (p *Product) GetID() string    { return p.ID }
func (p *Product) GetVersion() int  { return p.Version }
func (p *Product) SetVersion(v int) { p.Version = v }

// WithinBand reports whether a verified temperature falls inside the
// product's accepted band, bounds inclusive.
func (p *Product) WithinBand(temperature float64) bool {
	return temperature >= p.MinTemperature && temperature <= p.MaxTemperature
}

// ApplyEvent applies a single event to the product state (implements aggregate.Aggregate)
func (p *Product) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventProductRegistered:
		var data ProductRegistered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.ID = data.ProductID
		p.Name = data.Name
		p.Description = data.Description
		p.Manufacturer = data.Manufacturer
		p.MinTemperature = data.MinTemperature
		p.MaxTemperature = data.MaxTemperature
		p.LogisticsPartner = data.LogisticsPartner
		p.RegisteredAt = data.RegisteredAt
	}
	p.Version = event.Version
	return nil
}

// Spec is the input to product registration
type Spec struct {
	Name             string
	Description      string
	Manufacturer     string
	MinTemperature   float64
	MaxTemperature   float64
	LogisticsPartner string
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Register validates a product spec and records the new product
func (s *Service) Register(ctx context.Context, spec Spec) (*Product, error) {
	if spec.Name == "" {
		return nil, ErrInvalidName
	}
	if spec.MinTemperature > spec.MaxTemperature {
		return nil, ErrInvalidTemperatureBand
	}

	productID := uuid.New().String()
	now := time.Now()

	event := ProductRegistered{
		ProductID:        productID,
		Name:             spec.Name,
		Description:      spec.Description,
		Manufacturer:     spec.Manufacturer,
		MinTemperature:   spec.MinTemperature,
		MaxTemperature:   spec.MaxTemperature,
		LogisticsPartner: spec.LogisticsPartner,
		RegisteredAt:     now,
	}

	storedEvent, err := s.eventStore.Append(ctx, productID, AggregateType, EventProductRegistered, 0, event)
	if err != nil {
		return nil, err
	}

	product := &Product{}
	if err := product.ApplyEvent(*storedEvent); err != nil {
		return nil, err
	}
	return product, nil
}

// Get loads a product by replaying its events
func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	product, found, err := aggregate.LoadAggregate(ctx, s.eventStore, productID, func() *Product {
		return &Product{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// List returns all registered products in registration order. Pass an empty
// manufacturer to list every product.
func (s *Service) List(ctx context.Context, manufacturer string) ([]*Product, error) {
	events := s.eventStore.GetEventsByType(AggregateType)

	var products []*Product
	for _, event := range events {
		if event.EventType != EventProductRegistered {
			continue
		}
		p := &Product{}
		if err := p.ApplyEvent(event); err != nil {
			return nil, err
		}
		if manufacturer != "" && p.Manufacturer != manufacturer {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}
