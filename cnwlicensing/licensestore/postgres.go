package licensestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresPrefix = "cnw_licensing"

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// validIdentifier matches safe PostgreSQL identifiers (letters, digits, underscores).
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTablePrefix sets the prefix of the two PostgreSQL tables
// ("<prefix>_licenses" and "<prefix>_activations"). Default: "cnw_licensing".
func WithTablePrefix(prefix string) PostgresOption {
	return func(s *PostgresStore) {
		s.prefix = prefix
	}
}

// PostgresStore implements Store using PostgreSQL.
//
// The single-active-license invariant is enforced by a partial unique
// index ON (is_active) WHERE is_active, so concurrent inserts of a
// second active license are rejected atomically by the database.
type PostgresStore struct {
	pool             *pgxpool.Pool
	prefix           string
	licensesTable    string
	activationsTable string
}

// NewPostgresStore creates a new PostgreSQL-backed store. It auto-creates
// the tables and indexes on initialization.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		pool:   pool,
		prefix: defaultPostgresPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validIdentifier.MatchString(s.prefix) {
		return nil, fmt.Errorf("invalid table prefix %q: must match [a-zA-Z_][a-zA-Z0-9_]*", s.prefix)
	}
	s.licensesTable = s.prefix + "_licenses"
	s.activationsTable = s.prefix + "_activations"
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id            TEXT PRIMARY KEY,
			license_key   TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			notes         TEXT NOT NULL DEFAULT '',
			is_active     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_key
			ON %[1]s (license_key);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_single_active
			ON %[1]s (is_active) WHERE is_active;
		CREATE TABLE IF NOT EXISTS %[2]s (
			id             TEXT PRIMARY KEY,
			license_id     TEXT NOT NULL REFERENCES %[1]s (id),
			machine_id     TEXT NOT NULL,
			activation_key TEXT NOT NULL,
			is_active      BOOLEAN NOT NULL DEFAULT TRUE,
			activated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deactivated_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_license_machine
			ON %[2]s (license_id, machine_id);
	`, s.licensesTable, s.activationsTable)
	_, err := s.pool.Exec(ctx, query)
	return err
}

const licenseColumns = "id, license_key, customer_name, notes, is_active, created_at"

const activationColumns = "id, license_id, machine_id, activation_key, is_active, activated_at, deactivated_at"

func (s *PostgresStore) InsertLicense(ctx context.Context, lic *License) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, license_key, customer_name, notes, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.licensesTable)
	_, err := s.pool.Exec(ctx, query,
		lic.ID, lic.LicenseKey, lic.CustomerName, lic.Notes, lic.IsActive, lic.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert license: %w", mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) LicenseByID(ctx context.Context, id string) (*License, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, licenseColumns, s.licensesTable)
	return s.scanLicense(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) LicenseByKey(ctx context.Context, keyHex string) (*License, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE license_key = $1`, licenseColumns, s.licensesTable)
	return s.scanLicense(s.pool.QueryRow(ctx, query, keyHex))
}

func (s *PostgresStore) ActiveLicense(ctx context.Context) (*License, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE is_active`, licenseColumns, s.licensesTable)
	return s.scanLicense(s.pool.QueryRow(ctx, query))
}

func (s *PostgresStore) scanLicense(row pgx.Row) (*License, error) {
	var lic License
	err := row.Scan(&lic.ID, &lic.LicenseKey, &lic.CustomerName, &lic.Notes, &lic.IsActive, &lic.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan license: %w", mapPgError(err))
	}
	return &lic, nil
}

func (s *PostgresStore) SetLicenseActive(ctx context.Context, id string, active bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = $2 WHERE id = $1`, s.licensesTable)
	tag, err := s.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("update license: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update license: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Licenses(ctx context.Context) ([]License, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC`, licenseColumns, s.licensesTable)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []License
	for rows.Next() {
		var lic License
		if err := rows.Scan(&lic.ID, &lic.LicenseKey, &lic.CustomerName, &lic.Notes,
			&lic.IsActive, &lic.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

func (s *PostgresStore) InsertActivation(ctx context.Context, act *Activation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, license_id, machine_id, activation_key, is_active, activated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.activationsTable)
	_, err := s.pool.Exec(ctx, query,
		act.ID, act.LicenseID, act.MachineID, act.ActivationKey, act.IsActive, act.ActivatedAt, act.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activation: %w", mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) ActivationByID(ctx context.Context, id string) (*Activation, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, activationColumns, s.activationsTable)
	var act Activation
	err := s.pool.QueryRow(ctx, query, id).Scan(&act.ID, &act.LicenseID, &act.MachineID,
		&act.ActivationKey, &act.IsActive, &act.ActivatedAt, &act.DeactivatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan activation: %w", mapPgError(err))
	}
	return &act, nil
}

func (s *PostgresStore) Activations(ctx context.Context, licenseID string) ([]Activation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE license_id = $1 ORDER BY activated_at
	`, activationColumns, s.activationsTable)
	return s.queryActivations(ctx, query, licenseID)
}

func (s *PostgresStore) MachineActivations(ctx context.Context, licenseID, machineID string) ([]Activation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE license_id = $1 AND machine_id = $2 ORDER BY activated_at
	`, activationColumns, s.activationsTable)
	return s.queryActivations(ctx, query, licenseID, machineID)
}

func (s *PostgresStore) queryActivations(ctx context.Context, query string, args ...any) ([]Activation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	defer rows.Close()

	var activations []Activation
	for rows.Next() {
		var act Activation
		if err := rows.Scan(&act.ID, &act.LicenseID, &act.MachineID, &act.ActivationKey,
			&act.IsActive, &act.ActivatedAt, &act.DeactivatedAt); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		activations = append(activations, act)
	}
	return activations, rows.Err()
}

func (s *PostgresStore) DeactivateMachine(ctx context.Context, licenseID, machineID string, at time.Time) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET is_active = FALSE, deactivated_at = $3
		WHERE license_id = $1 AND machine_id = $2 AND is_active
	`, s.activationsTable)
	tag, err := s.pool.Exec(ctx, query, licenseID, machineID, at)
	if err != nil {
		return 0, fmt.Errorf("deactivate machine: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close(_ context.Context) error {
	return nil // user manages the pgxpool.Pool lifecycle
}

// mapPgError converts pgx-level failures to store sentinels where a
// sentinel applies.
func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
