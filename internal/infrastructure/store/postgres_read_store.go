package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/example/coldchain-ledger/internal/readmodel"
)

// hydrators maps a collection name to a constructor for its read model type,
// so rows loaded from JSONB come back as the same concrete types the
// in-memory store holds.
var hydrators = map[string]func() any{
	"products":  func() any { return &readmodel.ProductReadModel{} },
	"shipments": func() any { return &readmodel.ShipmentReadModel{} },
	"users":     func() any { return &readmodel.UserReadModel{} },
}

// PostgresReadStore persists read models in a single JSONB-backed table
type PostgresReadStore struct {
	db *sql.DB
}

func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

// Set stores a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ReadStore] Failed to marshal %s/%s: %v", collection, id, err)
		return
	}

	_, err = rs.db.ExecContext(context.Background(),
		`INSERT INTO read_models (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET data = $3, updated_at = $4`,
		collection, id, jsonData, time.Now(),
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to store %s/%s: %v", collection, id, err)
	}
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool) {
	var jsonData []byte
	err := rs.db.QueryRowContext(context.Background(),
		"SELECT data FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&jsonData)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[ReadStore] Failed to get %s/%s: %v", collection, id, err)
		}
		return nil, false
	}

	model, err := rs.hydrate(collection, jsonData)
	if err != nil {
		log.Printf("[ReadStore] Failed to hydrate %s/%s: %v", collection, id, err)
		return nil, false
	}
	return model, true
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(collection string) []any {
	rows, err := rs.db.QueryContext(context.Background(),
		"SELECT data FROM read_models WHERE collection = $1 ORDER BY updated_at ASC",
		collection,
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to list %s: %v", collection, err)
		return nil
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var jsonData []byte
		if err := rows.Scan(&jsonData); err != nil {
			continue
		}
		model, err := rs.hydrate(collection, jsonData)
		if err != nil {
			log.Printf("[ReadStore] Failed to hydrate %s row: %v", collection, err)
			continue
		}
		items = append(items, model)
	}
	return items
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) {
	_, err := rs.db.ExecContext(context.Background(),
		"DELETE FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to delete %s/%s: %v", collection, id, err)
	}
}

// Update modifies a read model using an update function. Returns false if the
// read model does not exist.
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	current, ok := rs.Get(collection, id)
	if !ok {
		return false
	}
	rs.Set(collection, id, updateFn(current))
	return true
}

func (rs *PostgresReadStore) hydrate(collection string, jsonData []byte) (any, error) {
	newModel, ok := hydrators[collection]
	if ok {
		model := newModel()
		if err := json.Unmarshal(jsonData, model); err != nil {
			return nil, err
		}
		return model, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(jsonData, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}
