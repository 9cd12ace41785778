package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/coldchain-ledger/internal/api/middleware"
	"github.com/example/coldchain-ledger/internal/auth"
	"github.com/example/coldchain-ledger/internal/command"
	"github.com/example/coldchain-ledger/internal/domain/product"
	"github.com/example/coldchain-ledger/internal/domain/shipment"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
	"github.com/example/coldchain-ledger/internal/oracle"
	"github.com/example/coldchain-ledger/internal/query"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	oracleClient *oracle.Client
	actionGate   *auth.ActionGate
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, oracleClient *oracle.Client, actionGate *auth.ActionGate) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		oracleClient: oracleClient,
		actionGate:   actionGate,
	}
}

// Product Handlers

func (h *Handlers) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var cmd command.RegisterProduct
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prod, err := h.cmdHandler.RegisterProduct(r.Context(), cmd)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	respondJSON(w, http.StatusCreated, prod)
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	manufacturer := r.URL.Query().Get("manufacturer")
	products := h.queryHandler.ListProducts(manufacturer)
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	prod, ok := h.queryHandler.GetProduct(id)
	if !ok {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, prod)
}

// Shipment Handlers

func (h *Handlers) FundEscrow(w http.ResponseWriter, r *http.Request) {
	var cmd command.FundEscrow
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ship, err := h.cmdHandler.FundEscrow(r.Context(), cmd)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	respondJSON(w, http.StatusCreated, ship)
}

func (h *Handlers) GetShipments(w http.ResponseWriter, r *http.Request) {
	shipments := h.queryHandler.ListShipments()

	// Optional epoch-millisecond lower bound for incremental dashboard refresh
	if sinceMS := r.URL.Query().Get("since_ms"); sinceMS != "" {
		ms, err := strconv.ParseInt(sinceMS, 10, 64)
		if err != nil {
			http.Error(w, "invalid since_ms", http.StatusBadRequest)
			return
		}
		since := fromEpochMillis(ms)
		filtered := shipments[:0]
		for _, s := range shipments {
			if s.CreatedAt.After(since) {
				filtered = append(filtered, s)
			}
		}
		shipments = filtered
	}

	// Clients pass this back as since_ms on their next poll
	w.Header().Set("X-As-Of-Ms", strconv.FormatInt(epochMillis(time.Now()), 10))
	respondJSON(w, http.StatusOK, shipments)
}

func (h *Handlers) GetShipment(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/shipments/")
	ship, ok := h.queryHandler.GetShipment(id)
	if !ok {
		http.Error(w, "Shipment not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, ship)
}

func (h *Handlers) AddShipmentEvent(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/shipments/")
	id := strings.TrimSuffix(path, "/events")

	var cmd command.RecordCustodyEvent
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd.ShipmentID = id

	event, ship, err := h.cmdHandler.RecordCustodyEvent(r.Context(), cmd)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"event":    event,
		"shipment": ship,
	})
}

func (h *Handlers) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/shipments/")
	id := strings.TrimSuffix(path, "/confirm")

	ship, err := h.cmdHandler.ConfirmDelivery(r.Context(), command.ConfirmDelivery{
		ShipmentID:  id,
		ConfirmedBy: getUserID(r),
	})
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	respondJSON(w, http.StatusOK, ship)
}

// User Handlers

func (h *Handlers) GetUsers(w http.ResponseWriter, r *http.Request) {
	users := h.queryHandler.ListUsers()
	responses := make([]UserResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, UserResponse{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      u.Role,
			Address:   u.Address,
			CreatedAt: u.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, responses)
}

func (h *Handlers) GetUserShipments(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/users/")
	userID := strings.TrimSuffix(path, "/shipments")
	role := r.URL.Query().Get("role")

	shipments := h.queryHandler.ListShipmentsByUser(userID, role)
	respondJSON(w, http.StatusOK, shipments)
}

// Action gate

type verifyActionRequest struct {
	Secret string `json:"secret"`
	Action string `json:"action"`
}

type verifyActionResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// VerifyAction checks an action secret without performing the action, so
// clients can gate their forms up front.
func (h *Handlers) VerifyAction(w http.ResponseWriter, r *http.Request) {
	var req verifyActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.actionGate == nil {
		respondJSON(w, http.StatusOK, verifyActionResponse{Valid: true, Message: "Action gating disabled"})
		return
	}

	if h.actionGate.Verify(req.Secret, req.Action) {
		respondJSON(w, http.StatusOK, verifyActionResponse{Valid: true, Message: "Authorized"})
		return
	}
	respondJSON(w, http.StatusOK, verifyActionResponse{Valid: false, Message: "Invalid secret for action"})
}

// Weather

func (h *Handlers) GetWeather(w http.ResponseWriter, r *http.Request) {
	location := extractPathParam(r.URL.Path, "/weather/")
	if location == "" {
		http.Error(w, "location is required", http.StatusBadRequest)
		return
	}

	if h.oracleClient != nil {
		if reading, err := h.oracleClient.Verify(r.Context(), location); err == nil {
			respondJSON(w, http.StatusOK, reading)
			return
		}
	}
	respondJSON(w, http.StatusOK, oracle.EstimateReading(location))
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// getUserID extracts user ID from JWT context or falls back to X-User-ID header
func getUserID(r *http.Request) string {
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		return userID
	}
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return userID
	}
	return ""
}

// statusForError maps ledger errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, shipment.ErrShipmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, shipment.ErrShipmentClosed),
		errors.Is(err, shipment.ErrNotDelivered),
		errors.Is(err, shipment.ErrEscrowAlreadyReleased),
		errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, product.ErrInvalidName),
		errors.Is(err, product.ErrInvalidTemperatureBand),
		errors.Is(err, shipment.ErrInvalidEscrowAmount),
		errors.Is(err, shipment.ErrInvalidEventType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
