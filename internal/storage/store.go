// Package storage selects the persistence backend. Services depend on store
// interfaces, so swapping the in-memory stores for Postgres needs no change
// in business code.
package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"healthtrack/internal/authz"
	doctorservice "healthtrack/internal/doctor/service"
	doctorstore "healthtrack/internal/doctor/store"
	kycservice "healthtrack/internal/kyc/service"
	kycstore "healthtrack/internal/kyc/store"
	"healthtrack/internal/platform/config"
	"healthtrack/internal/platform/postgres"
	principalservice "healthtrack/internal/principal/service"
	principalstore "healthtrack/internal/principal/store"
	audit "healthtrack/pkg/platform/audit"
	auditmemory "healthtrack/pkg/platform/audit/store/memory"
	auditpostgres "healthtrack/pkg/platform/audit/store/postgres"
	"healthtrack/pkg/platform/tx"
)

// PrincipalStore backs registration and is the role source of truth.
type PrincipalStore interface {
	principalservice.Store
	authz.RoleSource
}

// DoctorStore backs the approval gate and doctor registration.
type DoctorStore interface {
	doctorservice.Store
	principalservice.DoctorProfiles
}

// AuditStore is the outbox: written by publishers, drained by the relay.
type AuditStore interface {
	audit.Store
	audit.Outbox
}

type Mode string

const (
	ModeMemory   Mode = "memory"
	ModePostgres Mode = "postgres"
)

// Stores is one consistent set of stores sharing a transaction runner.
type Stores struct {
	Mode       Mode
	Principals PrincipalStore
	Doctors    DoctorStore
	Kyc        kycservice.Store
	Audit      AuditStore
	Tx         tx.Runner

	db *sql.DB
}

// Open connects to Postgres and applies migrations when a database URL is
// configured. Otherwise it returns in-memory stores, which lose data on
// restart and cannot roll back a failed unit of work.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Stores, error) {
	if cfg.URL == "" {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		return NewInMemory(), nil
	}

	db, err := postgres.Open(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Stores{
		Mode:       ModePostgres,
		Principals: principalstore.NewPostgres(db),
		Doctors:    doctorstore.NewPostgres(db),
		Kyc:        kycstore.NewPostgres(db),
		Audit:      auditpostgres.New(db),
		Tx:         postgres.NewTxRunner(db),
		db:         db,
	}, nil
}

// NewInMemory returns process-local stores.
func NewInMemory() *Stores {
	return &Stores{
		Mode:       ModeMemory,
		Principals: principalstore.NewInMemory(),
		Doctors:    doctorstore.NewInMemory(),
		Kyc:        kycstore.NewInMemory(),
		Audit:      auditmemory.NewInMemoryStore(),
		Tx:         &tx.LocalRunner{},
	}
}

// Health pings the database. In-memory stores are always healthy.
func (s *Stores) Health(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
