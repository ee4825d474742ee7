// Package mysql implements a MySQL telemetry subsystem storage backend.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	"github.com/micromdm/nanoheal/workflow"
)

// Schema contains the MySQL schema for the telemetry storage.
//
//go:embed schema.sql
var Schema string

// MySQLStorage implements a storage.Storage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
//
// Default driver is "mysql".
// Value is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
//
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQLStorage.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

// RetrieveTelemetry queries and returns the telemetry snapshots mapped by device ID.
func (s *MySQLStorage) RetrieveTelemetry(ctx context.Context, opt *storage.SearchOptions) (map[string]*workflow.Telemetry, error) {
	if opt == nil || len(opt.IDs) < 1 {
		return nil, storage.ErrNoIDs
	}

	args := make([]interface{}, len(opt.IDs))
	for i, id := range opt.IDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT device_id, telemetry FROM telemetry WHERE device_id IN (?`+strings.Repeat(", ?", len(opt.IDs)-1)+`);`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	ret := make(map[string]*workflow.Telemetry)
	for rows.Next() {
		var id string
		var raw []byte
		if err = rows.Scan(&id, &raw); err != nil {
			return ret, fmt.Errorf("scanning telemetry: %w", err)
		}
		t := new(workflow.Telemetry)
		if err = json.Unmarshal(raw, t); err != nil {
			return ret, fmt.Errorf("unmarshal telemetry for %s: %w", id, err)
		}
		ret[id] = t
	}
	return ret, rows.Err()
}

// StoreTelemetry replaces the telemetry snapshot of id.
func (s *MySQLStorage) StoreTelemetry(ctx context.Context, id string, t *workflow.Telemetry) error {
	if id == "" {
		return storage.ErrNoIDs
	}
	if t == nil {
		return storage.ErrNoTelemetry
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`
INSERT INTO telemetry
    (device_id, telemetry)
VALUES
    (?, ?) AS new
ON DUPLICATE KEY
UPDATE
    telemetry = new.telemetry;`,
		id,
		raw,
	)
	return err
}

// DeleteTelemetry deletes the telemetry snapshot of id.
func (s *MySQLStorage) DeleteTelemetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM telemetry WHERE device_id = ?;`, id)
	return err
}
