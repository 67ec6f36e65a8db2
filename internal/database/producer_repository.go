package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riftworks/taskqueue/internal/models"
)

// producerRepository implements ProducerRepository over the producers
// table backing the submission surface's authentication.
type producerRepository struct {
	querier Querier
}

// NewProducerRepository creates a new producer repository
func NewProducerRepository(conn *Connection) ProducerRepository {
	return &producerRepository{querier: conn.Pool}
}

// NewProducerRepositoryWithTx creates a producer repository bound to a transaction
func NewProducerRepositoryWithTx(tx pgx.Tx) ProducerRepository {
	return &producerRepository{querier: tx}
}

const producerColumns = `id, name, email, password_hash, default_queue, created_at, updated_at`

func (r *producerRepository) scanProducer(row pgx.Row) (*models.Producer, error) {
	var p models.Producer
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.DefaultQueue, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProducerNotFound
		}
		return nil, fmt.Errorf("failed to scan producer: %w", err)
	}
	return &p, nil
}

// Create inserts a new producer credential.
func (r *producerRepository) Create(ctx context.Context, producer *models.Producer) error {
	if producer == nil {
		return fmt.Errorf("producer cannot be nil")
	}
	if producer.ID == uuid.Nil {
		producer.ID = models.NewID()
	}

	query := `
		INSERT INTO producers (id, name, email, password_hash, default_queue, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.querier.QueryRow(ctx, query,
		producer.ID,
		producer.Name,
		strings.ToLower(strings.TrimSpace(producer.Email)),
		producer.PasswordHash,
		producer.DefaultQueue,
	).Scan(&producer.CreatedAt, &producer.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrProducerExists
		}
		return fmt.Errorf("failed to create producer: %w", err)
	}
	return nil
}

// GetByID fetches one producer by its ID.
func (r *producerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Producer, error) {
	query := fmt.Sprintf(`SELECT %s FROM producers WHERE id = $1`, producerColumns)
	return r.scanProducer(r.querier.QueryRow(ctx, query, id))
}

// GetByEmail fetches one producer by its contact address.
func (r *producerRepository) GetByEmail(ctx context.Context, email string) (*models.Producer, error) {
	query := fmt.Sprintf(`SELECT %s FROM producers WHERE email = $1`, producerColumns)
	return r.scanProducer(r.querier.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// Update persists the mutable producer fields.
func (r *producerRepository) Update(ctx context.Context, producer *models.Producer) error {
	if producer == nil {
		return fmt.Errorf("producer cannot be nil")
	}

	query := `
		UPDATE producers
		SET name = $2, email = $3, password_hash = $4, default_queue = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.querier.QueryRow(ctx, query,
		producer.ID,
		producer.Name,
		strings.ToLower(strings.TrimSpace(producer.Email)),
		producer.PasswordHash,
		producer.DefaultQueue,
	).Scan(&producer.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProducerNotFound
		}
		return fmt.Errorf("failed to update producer: %w", err)
	}
	return nil
}

// Delete removes a producer credential.
func (r *producerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.querier.Exec(ctx, `DELETE FROM producers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete producer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProducerNotFound
	}
	return nil
}

// List returns producers ordered by registration time, newest first.
func (r *producerRepository) List(ctx context.Context, limit, offset int) ([]*models.Producer, error) {
	limit, offset = normalizeLimitOffset(limit, offset)

	query := fmt.Sprintf(`
		SELECT %s FROM producers
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, producerColumns)

	rows, err := r.querier.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list producers: %w", err)
	}
	defer rows.Close()

	var producers []*models.Producer
	for rows.Next() {
		p, err := r.scanProducer(rows)
		if err != nil {
			return nil, err
		}
		producers = append(producers, p)
	}
	return producers, rows.Err()
}

// Count returns the number of registered producers.
func (r *producerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM producers`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count producers: %w", err)
	}
	return count, nil
}
