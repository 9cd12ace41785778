package projection

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/coldchain-ledger/internal/domain/product"
	"github.com/example/coldchain-ledger/internal/domain/shipment"
	"github.com/example/coldchain-ledger/internal/domain/user"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
	"github.com/example/coldchain-ledger/internal/readmodel"
)

type Projector struct {
	readStore store.ReadStoreInterface
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{readStore: readStore}
}

func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	log.Printf("[Projector] Received event: %s (aggregate: %s)", event.EventType, event.AggregateType)

	switch event.AggregateType {
	case product.AggregateType:
		return p.handleProductEvent(event)
	case shipment.AggregateType:
		return p.handleShipmentEvent(event)
	case user.AggregateType:
		return p.handleUserEvent(event)
	}

	return nil
}

func (p *Projector) handleProductEvent(event store.Event) error {
	switch event.EventType {
	case product.EventProductRegistered:
		var e product.ProductRegistered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Set("products", e.ProductID, &readmodel.ProductReadModel{
			ID:               e.ProductID,
			Name:             e.Name,
			Description:      e.Description,
			Manufacturer:     e.Manufacturer,
			MinTemperature:   e.MinTemperature,
			MaxTemperature:   e.MaxTemperature,
			LogisticsPartner: e.LogisticsPartner,
			RegisteredAt:     e.RegisteredAt,
		})
	}
	return nil
}

func (p *Projector) handleShipmentEvent(event store.Event) error {
	switch event.EventType {
	case shipment.EventEscrowFunded:
		var e shipment.EscrowFunded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Set("shipments", e.ShipmentID, &readmodel.ShipmentReadModel{
			ID:        e.ShipmentID,
			ProductID: e.ProductID,
			Product: readmodel.ProductReadModel{
				ID:               e.Product.ID,
				Name:             e.Product.Name,
				Description:      e.Product.Description,
				Manufacturer:     e.Product.Manufacturer,
				MinTemperature:   e.Product.MinTemperature,
				MaxTemperature:   e.Product.MaxTemperature,
				LogisticsPartner: e.Product.LogisticsPartner,
				RegisteredAt:     e.Product.RegisteredAt,
			},
			Manufacturer:     e.Manufacturer,
			LogisticsPartner: e.LogisticsPartner,
			Consumer:         e.Consumer,
			Status:           string(shipment.StatusPending),
			EscrowAmount:     e.EscrowAmount,
			EscrowReleased:   false,
			Events:           []readmodel.CustodyEventReadModel{},
			CreatedAt:        e.FundedAt,
		})

	case shipment.EventCustodyEventRecorded:
		var e shipment.CustodyEventRecorded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update("shipments", e.ShipmentID, func(current any) any {
			// Copy-on-write: pointers handed out by earlier reads stay
			// stable snapshots while the replacement is built.
			s := current.(*readmodel.ShipmentReadModel).Clone()
			s.Events = append(s.Events, readmodel.CustodyEventReadModel{
				ID:                  e.Event.ID,
				Timestamp:           e.Event.Timestamp,
				Location:            e.Event.Location,
				Temperature:         e.Event.Temperature,
				VerifiedTemperature: e.Event.VerifiedTemperature,
				Reporter:            e.Event.Reporter,
				EventType:           string(e.Event.EventType),
				IsTemperatureValid:  e.Event.IsTemperatureValid,
			})
			// Same derivation rules as the aggregate, so the read model can
			// never drift from the event log.
			next := shipment.NextStatus(shipment.Status(s.Status), e.Event.EventType, e.Event.IsTemperatureValid)
			if next == shipment.StatusDelivered && s.Status != string(shipment.StatusDelivered) {
				deliveredAt := e.Event.Timestamp
				s.DeliveredAt = &deliveredAt
			}
			s.Status = string(next)
			return s
		})

	case shipment.EventEscrowReleased:
		var e shipment.EscrowReleased
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update("shipments", e.ShipmentID, func(current any) any {
			s := current.(*readmodel.ShipmentReadModel).Clone()
			s.Status = string(shipment.StatusConfirmed)
			s.EscrowReleased = true
			confirmedAt := e.ConfirmedAt
			s.ConfirmedAt = &confirmedAt
			s.ConfirmedBy = e.ConfirmedBy
			return s
		})
	}
	return nil
}

func (p *Projector) handleUserEvent(event store.Event) error {
	switch event.EventType {
	case user.EventUserCreated:
		var e user.UserCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Set("users", e.UserID, &readmodel.UserReadModel{
			ID:           e.UserID,
			Email:        e.Email,
			PasswordHash: e.PasswordHash,
			Name:         e.Name,
			Role:         e.Role,
			Address:      e.Address,
			CreatedAt:    e.CreatedAt,
		})

	case user.EventUserPasswordChanged:
		var e user.UserPasswordChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update("users", e.UserID, func(current any) any {
			u := *current.(*readmodel.UserReadModel)
			u.PasswordHash = e.PasswordHash
			return &u
		})
	}
	return nil
}
