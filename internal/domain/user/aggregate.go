package user

import (
	"context"
	"errors"
	"time"

	"github.com/example/coldchain-ledger/internal/auth"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "User"

// Ledger party roles. A shipment references one party of each role; the
// references are weak, the ledger never owns party records.
const (
	RoleManufacturer = "manufacturer"
	RoleLogistics    = "logistics"
	RoleConsumer     = "consumer"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidEmail = errors.New("email is required")
	ErrInvalidName  = errors.New("name is required")
	ErrInvalidRole  = errors.New("role must be manufacturer, logistics, or consumer")
)

// ValidRole reports whether role is one of the ledger party roles
func ValidRole(role string) bool {
	switch role {
	case RoleManufacturer, RoleLogistics, RoleConsumer:
		return true
	}
	return false
}

// User represents a ledger party
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Address      string
	CreatedAt    time.Time
}

// Service handles user domain operations
type Service struct {
	eventStore store.EventStoreInterface
}

// NewService creates a new user service
func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Register creates a new ledger party with the given role
func (s *Service) Register(ctx context.Context, email, password, name, role, address string) (*User, error) {
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if name == "" {
		return nil, ErrInvalidName
	}
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	userID := uuid.New().String()
	now := time.Now()

	event := UserCreated{
		UserID:       userID,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		Address:      address,
		CreatedAt:    now,
	}

	_, err = s.eventStore.Append(ctx, userID, AggregateType, EventUserCreated, 0, event)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:        userID,
		Email:     email,
		Name:      name,
		Role:      role,
		Address:   address,
		CreatedAt: now,
	}, nil
}

// RecordLogin records a user login event
func (s *Service) RecordLogin(ctx context.Context, userID, ipAddress, userAgent string) error {
	event := UserLoggedIn{
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		LoggedAt:  time.Now(),
	}

	// Login audit entries have no load-then-decide step, so they append at
	// the tail unconditionally.
	_, err := s.eventStore.Append(ctx, userID, AggregateType, EventUserLoggedIn, store.AnyVersion, event)
	return err
}

// RecordLogout records a user logout event
func (s *Service) RecordLogout(ctx context.Context, userID string) error {
	event := UserLoggedOut{
		UserID:   userID,
		LoggedAt: time.Now(),
	}

	_, err := s.eventStore.Append(ctx, userID, AggregateType, EventUserLoggedOut, store.AnyVersion, event)
	return err
}

// ChangePassword changes a user's password
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	events := s.eventStore.GetEvents(userID)
	if len(events) == 0 {
		return ErrUserNotFound
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	event := UserPasswordChanged{
		UserID:       userID,
		PasswordHash: passwordHash,
		ChangedAt:    time.Now(),
	}

	_, err = s.eventStore.Append(ctx, userID, AggregateType, EventUserPasswordChanged, len(events), event)
	return err
}
