package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"healthtrack/internal/doctor/models"
	"healthtrack/internal/platform/postgres"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
	txcontext "healthtrack/pkg/platform/tx"
)

// PostgresStore guards decisions with the version column. A decision that
// loses a race gets sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `doctor_id, license_number, specialization, years_of_experience, bio,
	approval_state, decided_by, decided_at, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.DoctorProfile) error {
	var years sql.NullInt32
	if p.Details.YearsOfExperience != nil {
		years = sql.NullInt32{Int32: int32(*p.Details.YearsOfExperience), Valid: true}
	}
	var bio sql.NullString
	if p.Details.Bio != "" {
		bio = sql.NullString{String: p.Details.Bio, Valid: true}
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO doctor_profiles (doctor_id, license_number, specialization, years_of_experience, bio,
			approval_state, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(p.DoctorID),
		p.Details.LicenseNumber,
		p.Details.Specialization,
		years,
		bio,
		string(p.State),
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert doctor profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, doctorID id.PrincipalID) (*models.DoctorProfile, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM doctor_profiles WHERE doctor_id = $1`, uuid.UUID(doctorID))
	return scanProfile(row)
}

// IsApproved is false for unknown doctors.
func (s *PostgresStore) IsApproved(ctx context.Context, doctorID id.PrincipalID) (bool, error) {
	var approved bool
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_profiles WHERE doctor_id = $1 AND approval_state = 'approved'
		)`, uuid.UUID(doctorID)).Scan(&approved)
	if err != nil {
		return false, fmt.Errorf("query doctor approval: %w", err)
	}
	return approved, nil
}

func (s *PostgresStore) ListByState(ctx context.Context, state models.ApprovalState) ([]*models.DoctorProfile, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+profileColumns+` FROM doctor_profiles WHERE approval_state = $1 ORDER BY created_at ASC, doctor_id ASC`,
		string(state))
	if err != nil {
		return nil, fmt.Errorf("query doctor profiles: %w", err)
	}
	defer rows.Close()

	out := make([]*models.DoctorProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doctor profiles: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Execute(ctx context.Context, doctorID id.PrincipalID, validate func(*models.DoctorProfile) error, mutate func(*models.DoctorProfile)) (*models.DoctorProfile, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)

	p, err := scanProfile(exec.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM doctor_profiles WHERE doctor_id = $1`, uuid.UUID(doctorID)))
	if err != nil {
		return nil, err
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	expected := p.Version
	mutate(p)
	p.Version = expected + 1

	var decidedBy uuid.NullUUID
	if p.DecidedBy != nil {
		decidedBy = uuid.NullUUID{UUID: uuid.UUID(*p.DecidedBy), Valid: true}
	}
	var decidedAt sql.NullTime
	if p.DecidedAt != nil {
		decidedAt = sql.NullTime{Time: *p.DecidedAt, Valid: true}
	}

	res, err := exec.ExecContext(ctx, `
		UPDATE doctor_profiles
		SET approval_state = $1, decided_by = $2, decided_at = $3, version = $4, updated_at = $5
		WHERE doctor_id = $6 AND version = $7
	`, string(p.State), decidedBy, decidedAt, p.Version, p.UpdatedAt, uuid.UUID(doctorID), expected)
	if err != nil {
		return nil, fmt.Errorf("update doctor profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update doctor profile: %w", err)
	}
	if affected == 0 {
		return nil, sentinel.ErrConflict
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.DoctorProfile, error) {
	var (
		p         models.DoctorProfile
		doctorID  uuid.UUID
		state     string
		years     sql.NullInt32
		bio       sql.NullString
		decidedBy uuid.NullUUID
		decidedAt sql.NullTime
	)
	err := row.Scan(&doctorID, &p.Details.LicenseNumber, &p.Details.Specialization, &years, &bio,
		&state, &decidedBy, &decidedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan doctor profile: %w", err)
	}

	p.DoctorID = id.PrincipalID(doctorID)
	p.State = models.ApprovalState(state)
	p.Details.Bio = bio.String
	if years.Valid {
		y := int(years.Int32)
		p.Details.YearsOfExperience = &y
	}
	if decidedBy.Valid {
		v := id.PrincipalID(decidedBy.UUID)
		p.DecidedBy = &v
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	return &p, nil
}
