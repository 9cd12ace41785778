package main

import (
	"context"
	"log"

	"github.com/example/coldchain-ledger/internal/domain/product"
	"github.com/example/coldchain-ledger/internal/domain/shipment"
	"github.com/example/coldchain-ledger/internal/domain/user"
)

// seedDemoData populates a fresh ledger with a small demo dataset.
// Errors are logged and skipped so a partially-seeded store on restart
// does not stop the server from coming up.
func seedDemoData(ctx context.Context, userSvc *user.Service, productSvc *product.Service, shipmentSvc *shipment.Service) {
	log.Println("[API] Seeding demo data...")

	seedUsers := []struct {
		email, password, name, role, address string
	}{
		{"maker@coldchain.example", "manufacturer123", "Arctic Pharma Ltd", user.RoleManufacturer, "Plot 14, MIDC, Pune"},
		{"mover@coldchain.example", "logistics789", "Polar Express Logistics", user.RoleLogistics, "Transport Nagar, Nagpur"},
		{"buyer@coldchain.example", "consumer2024", "City Care Hospital", user.RoleConsumer, "MG Road, Bangalore"},
	}
	for _, u := range seedUsers {
		if _, err := userSvc.Register(ctx, u.email, u.password, u.name, u.role, u.address); err != nil {
			log.Printf("[API] Seed user %s skipped: %v", u.email, err)
		}
	}

	prod, err := productSvc.Register(ctx, product.Spec{
		Name:             "Insulin Vials (10ml)",
		Description:      "Temperature-sensitive insulin, keep refrigerated",
		Manufacturer:     "Arctic Pharma Ltd",
		MinTemperature:   2,
		MaxTemperature:   8,
		LogisticsPartner: "Polar Express Logistics",
	})
	if err != nil {
		log.Printf("[API] Seed product skipped: %v", err)
		return
	}

	if _, err := shipmentSvc.Fund(ctx, prod, "City Care Hospital", 50000); err != nil {
		log.Printf("[API] Seed shipment skipped: %v", err)
		return
	}

	log.Println("[API] Demo data seeded")
}
