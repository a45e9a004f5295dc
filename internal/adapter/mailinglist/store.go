// Package mailinglist looks up notification subscribers in the relational
// mailing list store.
package mailinglist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
)

// Store queries subscribers by their registered postcodes.
type Store struct {
	db *sql.DB
}

// Open connects to the mailing list database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mailing list store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle, for tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SubscribersByPostcodes returns every distinct subscriber with at least one
// registered postcode in the given set.
func (s *Store) SubscribersByPostcodes(ctx context.Context, postcodes []string) ([]domain.Subscriber, error) {
	if len(postcodes) == 0 {
		return nil, nil
	}

	const query = `SELECT DISTINCT s.id, s.email
		FROM subscribers s
		JOIN postcodes p ON p.subscriber_id = s.id
		WHERE p.postcode = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(postcodes))
	if err != nil {
		return nil, fmt.Errorf("query subscribers by postcodes: %w", err)
	}
	defer rows.Close()

	var subscribers []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		subscribers = append(subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber rows: %w", err)
	}
	return subscribers, nil
}
