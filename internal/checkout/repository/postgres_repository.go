package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/waroenk/commerce/internal/checkout"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host, cred.Port, cred.User, cred.Password, cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection (tests).
func NewPostgresRepositoryFromDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

const sessionColumns = `id, user_id, status, items, total_price, currency, address_id, order_id, payment_code, created_at, updated_at, expires_at`

func (r *PostgresRepository) Create(ctx context.Context, s *checkout.Session) error {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("marshal session items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checkout_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.UserID, s.Status, items, s.TotalPrice, s.Currency,
		s.AddressID, s.OrderID, s.PaymentCode, s.CreatedAt, s.UpdatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*checkout.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM checkout_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *PostgresRepository) Update(ctx context.Context, s *checkout.Session) error {
	return r.update(ctx, r.db, s)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PostgresRepository) update(ctx context.Context, ex execer, s *checkout.Session) error {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("marshal session items: %w", err)
	}

	s.UpdatedAt = time.Now()
	result, err := ex.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = $2, items = $3, total_price = $4, address_id = $5,
		    order_id = $6, payment_code = $7, updated_at = $8, expires_at = $9
		WHERE id = $1`,
		s.ID, s.Status, items, s.TotalPrice, s.AddressID,
		s.OrderID, s.PaymentCode, s.UpdatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateWithEvent(ctx context.Context, s *checkout.Session, event *OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.update(ctx, tx, s); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkout_outbox (aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		event.AggregateID, event.EventType, event.Payload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return tx.Commit()
}

func (r *PostgresRepository) FindActiveByUser(ctx context.Context, userID string) (*checkout.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM checkout_sessions
		WHERE user_id = $1 AND status IN ('LOCKED', 'ADDRESS_SET')
		ORDER BY created_at DESC LIMIT 1`, userID)
	return scanSession(row)
}

func (r *PostgresRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*checkout.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM checkout_sessions
		WHERE status IN ('LOCKED', 'ADDRESS_SET') AND expires_at < $1
		ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*checkout.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at, processed_at
		FROM checkout_outbox WHERE processed_at IS NULL
		ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt, &ev.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) MarkEventProcessed(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE checkout_outbox SET processed_at = $2 WHERE id = $1`, eventID, time.Now())
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*checkout.Session, error) {
	var s checkout.Session
	var items []byte

	err := row.Scan(&s.ID, &s.UserID, &s.Status, &items, &s.TotalPrice, &s.Currency,
		&s.AddressID, &s.OrderID, &s.PaymentCode, &s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkout session: %w", err)
	}

	if err := json.Unmarshal(items, &s.Items); err != nil {
		return nil, fmt.Errorf("unmarshal session items: %w", err)
	}
	return &s, nil
}
