package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"healthtrack/internal/platform/postgres"
	"healthtrack/internal/principal/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
	txcontext "healthtrack/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const principalColumns = `id, email, password_hash, full_name, phone, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Principal) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO principals (id, email, password_hash, full_name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(p.ID), p.Email, p.PasswordHash, p.FullName, p.Phone, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, uuid.UUID(principalID))
	return scanPrincipal(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, address string) (*models.Principal, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, address)
	return scanPrincipal(row)
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p *models.Principal) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE principals SET full_name = $1, phone = $2, updated_at = $3 WHERE id = $4
	`, p.FullName, p.Phone, p.UpdatedAt, uuid.UUID(p.ID))
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// AssignRole relies on the role_assignments primary key for the
// one-role-per-principal rule.
func (s *PostgresStore) AssignRole(ctx context.Context, a models.RoleAssignment) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO role_assignments (principal_id, role, assigned_at) VALUES ($1, $2, $3)
	`, uuid.UUID(a.PrincipalID), string(a.Role), a.AssignedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert role assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) RoleOf(ctx context.Context, principalID id.PrincipalID) (id.Role, error) {
	var raw string
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT role FROM role_assignments WHERE principal_id = $1`, uuid.UUID(principalID)).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("query role assignment: %w", err)
	}
	role, err := id.ParseRole(raw)
	if err != nil {
		return "", fmt.Errorf("stored role %q: %w", raw, err)
	}
	return role, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*models.Principal, error) {
	var (
		p           models.Principal
		principalID uuid.UUID
	)
	err := row.Scan(&principalID, &p.Email, &p.PasswordHash, &p.FullName, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	p.ID = id.PrincipalID(principalID)
	return &p, nil
}
