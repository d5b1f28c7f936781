//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"healthtrack/internal/platform/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// already migrated.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts Postgres and applies the embedded migrations.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("healthtrack"),
		tcpostgres.WithUsername("healthtrack"),
		tcpostgres.WithPassword("healthtrack"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := postgres.Open(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		URL:       url,
		DB:        db,
	}
}

// TruncateTables empties the named tables. TRUNCATE does not fire the
// row-level append-only triggers, so the audit log can be reset too.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", "))
	if _, err := p.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("truncate %v: %w", tables, err)
	}
	return nil
}

// TruncateAll resets every domain table.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	return p.TruncateTables(ctx,
		"outbox", "kyc_audit_log", "kyc_documents", "doctor_profiles", "role_assignments", "principals",
	)
}

// SeedPrincipal inserts a principal with role and returns its ID. Stores with
// foreign keys to principals use it to set up rows without the service layer.
func (p *PostgresContainer) SeedPrincipal(ctx context.Context, t *testing.T, role string) uuid.UUID {
	t.Helper()
	principalID := uuid.New()
	now := time.Now()
	if _, err := p.DB.ExecContext(ctx, `
		INSERT INTO principals (id, email, password_hash, full_name, created_at, updated_at)
		VALUES ($1, $2, 'x', 'Seeded Principal', $3, $3)
	`, principalID, principalID.String()+"@example.test", now); err != nil {
		t.Fatalf("seed principal: %v", err)
	}
	if _, err := p.DB.ExecContext(ctx, `
		INSERT INTO role_assignments (principal_id, role, assigned_at) VALUES ($1, $2, $3)
	`, principalID, role, now); err != nil {
		t.Fatalf("seed role assignment: %v", err)
	}
	return principalID
}
