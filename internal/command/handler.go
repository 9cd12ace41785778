package command

import (
	"context"

	"github.com/example/coldchain-ledger/internal/domain/product"
	"github.com/example/coldchain-ledger/internal/domain/shipment"
)

type Handler struct {
	productSvc  *product.Service
	shipmentSvc *shipment.Service
}

func NewHandler(productSvc *product.Service, shipmentSvc *shipment.Service) *Handler {
	return &Handler{
		productSvc:  productSvc,
		shipmentSvc: shipmentSvc,
	}
}

// RegisterProduct registers a new product (emits ProductRegistered event)
func (h *Handler) RegisterProduct(ctx context.Context, cmd RegisterProduct) (*product.Product, error) {
	return h.productSvc.Register(ctx, product.Spec{
		Name:             cmd.Name,
		Description:      cmd.Description,
		Manufacturer:     cmd.Manufacturer,
		MinTemperature:   cmd.MinTemperature,
		MaxTemperature:   cmd.MaxTemperature,
		LogisticsPartner: cmd.LogisticsPartner,
	})
}

// FundEscrow creates a shipment for an existing product (emits EscrowFunded
// event). This is the only way a shipment comes into existence.
func (h *Handler) FundEscrow(ctx context.Context, cmd FundEscrow) (*shipment.Shipment, error) {
	// The registry is authoritative for product existence
	prod, err := h.productSvc.Get(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}

	return h.shipmentSvc.Fund(ctx, prod, cmd.Consumer, cmd.EscrowAmount)
}

// RecordCustodyEvent appends a chain-of-custody event to a shipment (emits
// CustodyEventRecorded event). Returns the new event and the updated
// shipment so callers can refresh derived views without a second fetch.
func (h *Handler) RecordCustodyEvent(ctx context.Context, cmd RecordCustodyEvent) (*shipment.CustodyEvent, *shipment.Shipment, error) {
	return h.shipmentSvc.RecordEvent(
		ctx,
		cmd.ShipmentID,
		cmd.Location,
		cmd.Temperature,
		shipment.EventType(cmd.EventType),
		cmd.Reporter,
	)
}

// ConfirmDelivery releases escrow for a delivered shipment (emits
// EscrowReleased event)
func (h *Handler) ConfirmDelivery(ctx context.Context, cmd ConfirmDelivery) (*shipment.Shipment, error) {
	return h.shipmentSvc.ConfirmDelivery(ctx, cmd.ShipmentID, cmd.ConfirmedBy)
}
