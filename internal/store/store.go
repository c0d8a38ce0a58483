package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a product, cart item or order does not exist
	ErrNotFound = errors.New("not found")
	// ErrLockTimeout is returned when row locks could not be acquired in time.
	// The whole transaction was rolled back and may be retried from scratch.
	ErrLockTimeout = errors.New("lock timeout, try again")
	// ErrDuplicateKey is returned on unique constraint violations
	ErrDuplicateKey = errors.New("duplicate key")
)

// Postgres SQLSTATE codes the store classifies
const (
	pqLockNotAvailable     = "55P03"
	pqDeadlockDetected     = "40P01"
	pqSerializationFailure = "40001"
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
)

type Store struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewStore creates a new database store
func NewStore(databaseURL string, lockTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, lockTimeout: lockTimeout}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classifyError maps driver errors onto the store's sentinel errors
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqDeadlockDetected, pqSerializationFailure:
			return fmt.Errorf("%w: %w", ErrLockTimeout, err)
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w", pqErr.Constraint, ErrNotFound)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}

	return err
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return classifyError(err)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product %d", id)
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// CreateProduct inserts a catalog product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (sku, name, description, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, p, query, p.SKU, p.Name, p.Description, p.Price, p.Stock)
	return classifyError(err)
}

// DeleteProduct removes a product. Cart rows cascade; order items keep a NULL reference.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return classifyError(err)
	}
	return expectAffected(res, "product %d", id)
}

func expectAffected(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
