package shipment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/coldchain-ledger/internal/domain/product"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
	"github.com/example/coldchain-ledger/internal/infrastructure/store/mocks"
	"github.com/example/coldchain-ledger/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOracle returns canned temperatures per location, or Err for every lookup
type stubOracle struct {
	temps map[string]float64
	Err   error
}

func (s *stubOracle) Temperature(ctx context.Context, location string) (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	if t, ok := s.temps[location]; ok {
		return t, nil
	}
	return 0, oracle.ErrUnavailable
}

func newTestShipmentService(temps map[string]float64) (*Service, *mocks.MockEventStore, *stubOracle) {
	eventStore := mocks.NewMockEventStore()
	src := &stubOracle{temps: temps}
	service := NewService(eventStore, src)
	return service, eventStore, src
}

func testProduct() *product.Product {
	return &product.Product{
		ID:               "prod-1",
		Name:             "Insulin Vials",
		Manufacturer:     "Arctic Pharma",
		MinTemperature:   2,
		MaxTemperature:   8,
		LogisticsPartner: "Polar Express",
		RegisteredAt:     time.Now(),
		Version:          1,
	}
}

// fundShipment seeds an EscrowFunded event directly and returns the shipment ID
func fundShipment(t *testing.T, eventStore *mocks.MockEventStore) string {
	t.Helper()
	shipmentID := "ship-123"
	prod := testProduct()
	err := eventStore.AddEvent(shipmentID, AggregateType, EventEscrowFunded, EscrowFunded{
		ShipmentID:       shipmentID,
		ProductID:        prod.ID,
		Product:          *prod,
		Manufacturer:     prod.Manufacturer,
		LogisticsPartner: prod.LogisticsPartner,
		Consumer:         "City Care Hospital",
		EscrowAmount:     50000,
		FundedAt:         time.Now(),
	})
	require.NoError(t, err)
	return shipmentID
}

// ============================================
// Fund Tests
// ============================================

func TestService_Fund_Success(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(nil)
	ctx := context.Background()

	shipment, err := service.Fund(ctx, testProduct(), "City Care Hospital", 50000)

	require.NoError(t, err)
	assert.NotEmpty(t, shipment.ID)
	assert.Equal(t, "prod-1", shipment.ProductID)
	assert.Equal(t, "Arctic Pharma", shipment.Manufacturer)
	assert.Equal(t, "Polar Express", shipment.LogisticsPartner)
	assert.Equal(t, "City Care Hospital", shipment.Consumer)
	assert.Equal(t, StatusPending, shipment.Status)
	assert.Equal(t, 50000.0, shipment.EscrowAmount)
	assert.False(t, shipment.EscrowReleased)
	assert.Empty(t, shipment.Events)

	assert.Len(t, eventStore.AppendCalls, 1)
	assert.Equal(t, EventEscrowFunded, eventStore.AppendCalls[0].EventType)
	assert.Equal(t, AggregateType, eventStore.AppendCalls[0].AggregateType)
}

func TestService_Fund_SnapshotsProduct(t *testing.T) {
	service, _, _ := newTestShipmentService(nil)
	ctx := context.Background()

	prod := testProduct()
	shipment, err := service.Fund(ctx, prod, "consumer", 100)
	require.NoError(t, err)

	// Mutating the registry copy must not affect the funded shipment
	prod.MinTemperature = -20
	assert.Equal(t, 2.0, shipment.Product.MinTemperature)
}

func TestService_Fund_NilProduct(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(nil)
	ctx := context.Background()

	shipment, err := service.Fund(ctx, nil, "consumer", 100)

	assert.ErrorIs(t, err, product.ErrProductNotFound)
	assert.Nil(t, shipment)
	assert.Empty(t, eventStore.AppendCalls)
}

func TestService_Fund_NegativeAmount(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(nil)
	ctx := context.Background()

	shipment, err := service.Fund(ctx, testProduct(), "consumer", -1)

	assert.ErrorIs(t, err, ErrInvalidEscrowAmount)
	assert.Nil(t, shipment)
	assert.Empty(t, eventStore.AppendCalls)
}

func TestService_Fund_ZeroAmountAllowed(t *testing.T) {
	service, _, _ := newTestShipmentService(nil)
	ctx := context.Background()

	shipment, err := service.Fund(ctx, testProduct(), "consumer", 0)

	require.NoError(t, err)
	assert.Equal(t, 0.0, shipment.EscrowAmount)
}

// ============================================
// Custody Event Tests - Happy Path
// ============================================

func TestService_RecordEvent_FullJourney(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{
		"Mumbai":    4,
		"Pune":      5,
		"Bangalore": 6,
	})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	// Pickup moves pending -> in_transit
	event, shipment, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4.5, EventTypePickup, "Polar Express")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, shipment.Status)
	assert.True(t, event.IsTemperatureValid)
	assert.Equal(t, 4.0, event.VerifiedTemperature)
	assert.Equal(t, 4.5, event.Temperature)

	// Transit checkpoint keeps in_transit
	_, shipment, err = service.RecordEvent(ctx, shipmentID, "Pune", 5.1, EventTypeTransit, "Polar Express")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, shipment.Status)

	// Delivery moves to delivered and stamps DeliveredAt
	_, shipment, err = service.RecordEvent(ctx, shipmentID, "Bangalore", 5.8, EventTypeDelivery, "Polar Express")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, shipment.Status)
	require.NotNil(t, shipment.DeliveredAt)
	assert.Len(t, shipment.Events, 3)
	assert.False(t, shipment.EscrowReleased)
}

func TestService_RecordEvent_EventsAreOrdered(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Mumbai": 4})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	first, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypePickup, "reporter")
	require.NoError(t, err)
	second, shipment, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeTransit, "reporter")
	require.NoError(t, err)

	require.Len(t, shipment.Events, 2)
	assert.Equal(t, first.ID, shipment.Events[0].ID)
	assert.Equal(t, second.ID, shipment.Events[1].ID)
	assert.False(t, shipment.Events[1].Timestamp.Before(shipment.Events[0].Timestamp))
}

// ============================================
// Custody Event Tests - Compromise
// ============================================

func TestService_RecordEvent_OutOfBandCompromises(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{
		"Mumbai": 4,
		"Surat":  33, // far above the 2..8 band
	})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypePickup, "reporter")
	require.NoError(t, err)

	event, shipment, err := service.RecordEvent(ctx, shipmentID, "Surat", 5, EventTypeTransit, "reporter")
	require.NoError(t, err)
	assert.False(t, event.IsTemperatureValid)
	assert.Equal(t, StatusCompromised, shipment.Status)
}

func TestService_RecordEvent_ReportedTemperatureNeverDecides(t *testing.T) {
	// Partner reports an in-band value but the oracle says otherwise
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Surat": 33})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	event, shipment, err := service.RecordEvent(ctx, shipmentID, "Surat", 5, EventTypePickup, "reporter")

	require.NoError(t, err)
	assert.Equal(t, 5.0, event.Temperature)
	assert.Equal(t, 33.0, event.VerifiedTemperature)
	assert.False(t, event.IsTemperatureValid)
	assert.Equal(t, StatusCompromised, shipment.Status)
}

func TestService_RecordEvent_DeliveryWithBadReadingCompromises(t *testing.T) {
	// Compromise takes precedence over the delivery transition
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Surat": 33})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, shipment, err := service.RecordEvent(ctx, shipmentID, "Surat", 5, EventTypeDelivery, "reporter")

	require.NoError(t, err)
	assert.Equal(t, StatusCompromised, shipment.Status)
	assert.Nil(t, shipment.DeliveredAt)
}

func TestService_RecordEvent_CompromisedRejectsFurtherEvents(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{
		"Surat":  33,
		"Mumbai": 4,
	})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Surat", 5, EventTypePickup, "reporter")
	require.NoError(t, err)

	// Even an in-band delivery can no longer change anything
	event, shipment, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeDelivery, "reporter")
	assert.ErrorIs(t, err, ErrShipmentClosed)
	assert.Nil(t, event)
	assert.Nil(t, shipment)

	// Only the first custody event made it into the log
	events := eventStore.GetEvents(shipmentID)
	assert.Len(t, events, 2) // EscrowFunded + one CustodyEventRecorded
}

// ============================================
// Custody Event Tests - Validation
// ============================================

func TestService_RecordEvent_InvalidEventType(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(nil)
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventType("teleport"), "reporter")

	assert.ErrorIs(t, err, ErrInvalidEventType)
	assert.Empty(t, eventStore.AppendCalls)
}

func TestService_RecordEvent_ShipmentNotFound(t *testing.T) {
	service, _, _ := newTestShipmentService(nil)
	ctx := context.Background()

	_, _, err := service.RecordEvent(ctx, "no-such-shipment", "Mumbai", 4, EventTypePickup, "reporter")

	assert.ErrorIs(t, err, ErrShipmentNotFound)
}

func TestService_RecordEvent_ConfirmedRejectsEvents(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Mumbai": 4})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeDelivery, "reporter")
	require.NoError(t, err)
	_, err = service.ConfirmDelivery(ctx, shipmentID, "")
	require.NoError(t, err)

	_, _, err = service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeTransit, "reporter")
	assert.ErrorIs(t, err, ErrShipmentClosed)
}

// ============================================
// Custody Event Tests - Oracle Fallback
// ============================================

func TestService_RecordEvent_OracleDownFallsBackToEstimate(t *testing.T) {
	service, eventStore, src := newTestShipmentService(nil)
	src.Err = oracle.ErrUnavailable
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	event, shipment, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypePickup, "reporter")

	require.NoError(t, err)
	require.NotNil(t, shipment)
	assert.Equal(t, oracle.Estimate("Mumbai"), event.VerifiedTemperature)
}

func TestService_RecordEvent_NilOracleUsesEstimate(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	service := NewService(eventStore, nil)
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	event, _, err := service.RecordEvent(ctx, shipmentID, "Delhi", 4, EventTypePickup, "reporter")

	require.NoError(t, err)
	assert.Equal(t, oracle.Estimate("Delhi"), event.VerifiedTemperature)
}

// ============================================
// Confirm Delivery Tests
// ============================================

func TestService_ConfirmDelivery_Success(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Mumbai": 4})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeDelivery, "reporter")
	require.NoError(t, err)

	shipment, err := service.ConfirmDelivery(ctx, shipmentID, "user-consumer-1")

	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, shipment.Status)
	assert.True(t, shipment.EscrowReleased)
	require.NotNil(t, shipment.ConfirmedAt)
	assert.Equal(t, "user-consumer-1", shipment.ConfirmedBy)
}

func TestService_ConfirmDelivery_BeforeDelivery(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Mumbai": 4})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	// pending
	shipment, err := service.ConfirmDelivery(ctx, shipmentID, "")
	assert.ErrorIs(t, err, ErrNotDelivered)
	assert.Nil(t, shipment)

	// in_transit
	_, _, err = service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypePickup, "reporter")
	require.NoError(t, err)
	_, err = service.ConfirmDelivery(ctx, shipmentID, "")
	assert.ErrorIs(t, err, ErrNotDelivered)

	// no EscrowReleased event was appended
	for _, call := range eventStore.AppendCalls {
		assert.NotEqual(t, EventEscrowReleased, call.EventType)
	}
}

func TestService_ConfirmDelivery_CompromisedNeverConfirms(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Surat": 33})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Surat", 5, EventTypeDelivery, "reporter")
	require.NoError(t, err)

	shipment, err := service.ConfirmDelivery(ctx, shipmentID, "")
	assert.ErrorIs(t, err, ErrNotDelivered)
	assert.Nil(t, shipment)
}

func TestService_ConfirmDelivery_Twice(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Mumbai": 4})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeDelivery, "reporter")
	require.NoError(t, err)
	_, err = service.ConfirmDelivery(ctx, shipmentID, "")
	require.NoError(t, err)

	shipment, err := service.ConfirmDelivery(ctx, shipmentID, "")

	assert.ErrorIs(t, err, ErrEscrowAlreadyReleased)
	assert.Nil(t, shipment)

	// Exactly one EscrowReleased in the log
	releases := 0
	for _, e := range eventStore.GetEvents(shipmentID) {
		if e.EventType == EventEscrowReleased {
			releases++
		}
	}
	assert.Equal(t, 1, releases)
}

func TestService_ConfirmDelivery_ShipmentNotFound(t *testing.T) {
	service, _, _ := newTestShipmentService(nil)
	ctx := context.Background()

	_, err := service.ConfirmDelivery(ctx, "no-such-shipment", "")

	assert.ErrorIs(t, err, ErrShipmentNotFound)
}

// ============================================
// Replay Tests
// ============================================

func TestService_Get_ReplaysFullHistory(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Mumbai": 4})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypePickup, "reporter")
	require.NoError(t, err)
	_, _, err = service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeDelivery, "reporter")
	require.NoError(t, err)

	shipment, err := service.Get(ctx, shipmentID)

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, shipment.Status)
	assert.Len(t, shipment.Events, 2)
	require.NotNil(t, shipment.DeliveredAt)
	assert.Equal(t, 3, shipment.Version)
}

func TestService_RecordEvent_AppendFailure(t *testing.T) {
	service, eventStore, _ := newTestShipmentService(map[string]float64{"Mumbai": 4})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	eventStore.AppendErr = errors.New("kafka unavailable")

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypePickup, "reporter")

	assert.Error(t, err)
}

// ============================================
// NextStatus Derivation Tests
// ============================================

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name      string
		current   Status
		eventType EventType
		tempValid bool
		want      Status
	}{
		{"pending pickup valid", StatusPending, EventTypePickup, true, StatusInTransit},
		{"pending transit valid", StatusPending, EventTypeTransit, true, StatusInTransit},
		{"pending delivery valid", StatusPending, EventTypeDelivery, true, StatusDelivered},
		{"pending invalid temp", StatusPending, EventTypePickup, false, StatusCompromised},
		{"in transit stays", StatusInTransit, EventTypeTransit, true, StatusInTransit},
		{"in transit delivery", StatusInTransit, EventTypeDelivery, true, StatusDelivered},
		{"in transit invalid temp", StatusInTransit, EventTypeTransit, false, StatusCompromised},
		{"invalid wins over delivery", StatusInTransit, EventTypeDelivery, false, StatusCompromised},
		{"delivered transit stays", StatusDelivered, EventTypeTransit, true, StatusDelivered},
		{"delivered invalid temp", StatusDelivered, EventTypeTransit, false, StatusCompromised},
		{"compromised is sticky", StatusCompromised, EventTypeDelivery, true, StatusCompromised},
		{"compromised stays on invalid", StatusCompromised, EventTypeTransit, false, StatusCompromised},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStatus(tt.current, tt.eventType, tt.tempValid)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShipment_CanTransitionTo(t *testing.T) {
	sh := &Shipment{Status: StatusDelivered}
	assert.True(t, sh.CanTransitionTo(StatusConfirmed))

	sh.Status = StatusCompromised
	assert.False(t, sh.CanTransitionTo(StatusConfirmed))
	assert.False(t, sh.CanTransitionTo(StatusDelivered))

	sh.Status = StatusConfirmed
	assert.False(t, sh.CanTransitionTo(StatusDelivered))
}

// ============================================
// Concurrency Tests
// ============================================

// slowLoadStore widens the load-then-append window the way a store behind
// real I/O latency would, so racing callers observe the same stale version.
type slowLoadStore struct {
	store.EventStoreInterface
	delay time.Duration
}

func (s *slowLoadStore) GetEvents(aggregateID string) []store.Event {
	time.Sleep(s.delay)
	return s.EventStoreInterface.GetEvents(aggregateID)
}

func TestService_ConfirmDelivery_ConcurrentCallersReleaseOnce(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	slow := &slowLoadStore{EventStoreInterface: eventStore, delay: 2 * time.Millisecond}
	service := NewService(slow, &stubOracle{temps: map[string]float64{"Mumbai": 4}})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeDelivery, "reporter")
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.ConfirmDelivery(ctx, shipmentID, "user-consumer-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, alreadyReleased := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrEscrowAlreadyReleased):
			alreadyReleased++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, alreadyReleased)

	releases := 0
	for _, e := range eventStore.GetEvents(shipmentID) {
		if e.EventType == EventEscrowReleased {
			releases++
		}
	}
	assert.Equal(t, 1, releases)
}

func TestService_RecordEvent_ConcurrentCompromiseClosesShipment(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	slow := &slowLoadStore{EventStoreInterface: eventStore, delay: 2 * time.Millisecond}
	service := NewService(slow, &stubOracle{temps: map[string]float64{
		"Mumbai": 4,
		"Surat":  33,
	}})
	ctx := context.Background()
	shipmentID := fundShipment(t, eventStore)

	_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypePickup, "reporter")
	require.NoError(t, err)

	// A compromising checkpoint races an in-band one. Whichever order they
	// land in, nothing may follow the compromise into the log.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, err := service.RecordEvent(ctx, shipmentID, "Surat", 5, EventTypeTransit, "reporter")
		if err != nil && !errors.Is(err, ErrShipmentClosed) {
			t.Errorf("unexpected error: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		_, _, err := service.RecordEvent(ctx, shipmentID, "Mumbai", 4, EventTypeTransit, "reporter")
		if err != nil && !errors.Is(err, ErrShipmentClosed) {
			t.Errorf("unexpected error: %v", err)
		}
	}()
	wg.Wait()

	compromised := false
	for _, e := range eventStore.GetEvents(shipmentID) {
		if e.EventType != EventCustodyEventRecorded {
			continue
		}
		require.False(t, compromised, "custody event recorded after the shipment was compromised")
		var data CustodyEventRecorded
		require.NoError(t, json.Unmarshal(e.Data, &data))
		if !data.Event.IsTemperatureValid {
			compromised = true
		}
	}
	assert.True(t, compromised)

	shipment, err := service.Get(ctx, shipmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompromised, shipment.Status)
}
