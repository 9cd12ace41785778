package query

import (
	"sort"

	"github.com/example/coldchain-ledger/internal/domain/user"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
)

type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

// Products

func (h *Handler) GetProduct(id string) (*ProductReadModel, bool) {
	data, ok := h.readStore.Get("products", id)
	if !ok {
		return nil, false
	}
	return data.(*ProductReadModel), true
}

// ListProducts returns products in registration order. Pass an empty
// manufacturer to list every product.
func (h *Handler) ListProducts(manufacturer string) []*ProductReadModel {
	items := h.readStore.GetAll("products")
	products := make([]*ProductReadModel, 0, len(items))
	for _, item := range items {
		p := item.(*ProductReadModel)
		if manufacturer != "" && p.Manufacturer != manufacturer {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].RegisteredAt.Before(products[j].RegisteredAt)
	})
	return products
}

// Shipments

func (h *Handler) GetShipment(id string) (*ShipmentReadModel, bool) {
	data, ok := h.readStore.Get("shipments", id)
	if !ok {
		return nil, false
	}
	return data.(*ShipmentReadModel), true
}

// ListShipments returns all shipments in funding order
func (h *Handler) ListShipments() []*ShipmentReadModel {
	items := h.readStore.GetAll("shipments")
	shipments := make([]*ShipmentReadModel, 0, len(items))
	for _, item := range items {
		shipments = append(shipments, item.(*ShipmentReadModel))
	}
	sort.Slice(shipments, func(i, j int) bool {
		return shipments[i].CreatedAt.Before(shipments[j].CreatedAt)
	})
	return shipments
}

// ListShipmentsByUser filters shipments by the party reference matching the
// given role. An unknown role yields an empty result, not an error.
func (h *Handler) ListShipmentsByUser(userID, role string) []*ShipmentReadModel {
	shipments := make([]*ShipmentReadModel, 0)
	for _, s := range h.ListShipments() {
		var match bool
		switch role {
		case user.RoleManufacturer:
			match = s.Manufacturer == userID
		case user.RoleLogistics:
			match = s.LogisticsPartner == userID
		case user.RoleConsumer:
			match = s.Consumer == userID
		}
		if match {
			shipments = append(shipments, s)
		}
	}
	return shipments
}

// Users

func (h *Handler) GetUser(id string) (*UserReadModel, bool) {
	data, ok := h.readStore.Get("users", id)
	if !ok {
		return nil, false
	}
	return data.(*UserReadModel), true
}

// GetUserByEmail scans the user directory for a matching email
func (h *Handler) GetUserByEmail(email string) (*UserReadModel, bool) {
	for _, item := range h.readStore.GetAll("users") {
		u := item.(*UserReadModel)
		if u.Email == email {
			return u, true
		}
	}
	return nil, false
}

// ListUsers returns the party directory in registration order
func (h *Handler) ListUsers() []*UserReadModel {
	items := h.readStore.GetAll("users")
	users := make([]*UserReadModel, 0, len(items))
	for _, item := range items {
		users = append(users, item.(*UserReadModel))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}
