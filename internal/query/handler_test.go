package query

import (
	"testing"
	"time"

	"github.com/example/coldchain-ledger/internal/domain/user"
	"github.com/example/coldchain-ledger/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueryHandler() (*Handler, *mocks.MockReadStore) {
	readStore := mocks.NewMockReadStore()
	handler := NewHandler(readStore)
	return handler, readStore
}

func seedShipments(readStore *mocks.MockReadStore) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	readStore.Set("shipments", "ship-1", &ShipmentReadModel{
		ID:               "ship-1",
		Manufacturer:     "Arctic Pharma",
		LogisticsPartner: "Polar Express",
		Consumer:         "City Care Hospital",
		Status:           "in_transit",
		CreatedAt:        base,
	})
	readStore.Set("shipments", "ship-2", &ShipmentReadModel{
		ID:               "ship-2",
		Manufacturer:     "Glacier Biotech",
		LogisticsPartner: "Polar Express",
		Consumer:         "Metro Clinic",
		Status:           "pending",
		CreatedAt:        base.Add(time.Hour),
	})
}

// ============================================
// Product Query Tests
// ============================================

func TestHandler_GetProduct(t *testing.T) {
	handler, readStore := newTestQueryHandler()

	readStore.Set("products", "prod-1", &ProductReadModel{ID: "prod-1", Name: "Insulin"})

	prod, ok := handler.GetProduct("prod-1")
	require.True(t, ok)
	assert.Equal(t, "Insulin", prod.Name)

	_, ok = handler.GetProduct("missing")
	assert.False(t, ok)
}

func TestHandler_ListProducts_SortedByRegistration(t *testing.T) {
	handler, readStore := newTestQueryHandler()

	base := time.Now()
	readStore.Set("products", "p2", &ProductReadModel{ID: "p2", RegisteredAt: base.Add(time.Minute)})
	readStore.Set("products", "p1", &ProductReadModel{ID: "p1", RegisteredAt: base})

	products := handler.ListProducts("")

	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "p2", products[1].ID)
}

func TestHandler_ListProducts_FilterByManufacturer(t *testing.T) {
	handler, readStore := newTestQueryHandler()

	readStore.Set("products", "p1", &ProductReadModel{ID: "p1", Manufacturer: "Arctic Pharma"})
	readStore.Set("products", "p2", &ProductReadModel{ID: "p2", Manufacturer: "Glacier Biotech"})

	products := handler.ListProducts("Arctic Pharma")

	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
}

func TestHandler_ListProducts_Empty(t *testing.T) {
	handler, _ := newTestQueryHandler()

	products := handler.ListProducts("")

	assert.NotNil(t, products)
	assert.Empty(t, products)
}

// ============================================
// Shipment Query Tests
// ============================================

func TestHandler_GetShipment(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedShipments(readStore)

	ship, ok := handler.GetShipment("ship-1")
	require.True(t, ok)
	assert.Equal(t, "in_transit", ship.Status)

	_, ok = handler.GetShipment("missing")
	assert.False(t, ok)
}

func TestHandler_ListShipments_SortedByFunding(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedShipments(readStore)

	shipments := handler.ListShipments()

	require.Len(t, shipments, 2)
	assert.Equal(t, "ship-1", shipments[0].ID)
	assert.Equal(t, "ship-2", shipments[1].ID)
}

func TestHandler_ListShipmentsByUser(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedShipments(readStore)

	tests := []struct {
		name   string
		userID string
		role   string
		want   []string
	}{
		{"manufacturer match", "Arctic Pharma", user.RoleManufacturer, []string{"ship-1"}},
		{"logistics matches both", "Polar Express", user.RoleLogistics, []string{"ship-1", "ship-2"}},
		{"consumer match", "Metro Clinic", user.RoleConsumer, []string{"ship-2"}},
		{"no match", "Nobody", user.RoleConsumer, []string{}},
		{"unknown role yields empty", "Arctic Pharma", "auditor", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shipments := handler.ListShipmentsByUser(tt.userID, tt.role)
			require.NotNil(t, shipments)
			ids := make([]string, 0, len(shipments))
			for _, s := range shipments {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

// ============================================
// User Query Tests
// ============================================

func TestHandler_GetUserByEmail(t *testing.T) {
	handler, readStore := newTestQueryHandler()

	readStore.Set("users", "user-1", &UserReadModel{ID: "user-1", Email: "maker@example.com"})

	u, ok := handler.GetUserByEmail("maker@example.com")
	require.True(t, ok)
	assert.Equal(t, "user-1", u.ID)

	_, ok = handler.GetUserByEmail("nobody@example.com")
	assert.False(t, ok)
}

func TestHandler_ListUsers_SortedByCreation(t *testing.T) {
	handler, readStore := newTestQueryHandler()

	base := time.Now()
	readStore.Set("users", "u2", &UserReadModel{ID: "u2", CreatedAt: base.Add(time.Second)})
	readStore.Set("users", "u1", &UserReadModel{ID: "u1", CreatedAt: base})

	users := handler.ListUsers()

	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u2", users[1].ID)
}
