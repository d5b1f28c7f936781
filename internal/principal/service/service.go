// Package service registers principals, signs them in and serves role and
// profile reads.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,DoctorProfiles,TokenIssuer,Authorizer,AuditPublisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"healthtrack/internal/authz"
	doctormodels "healthtrack/internal/doctor/models"
	"healthtrack/internal/principal/models"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	"healthtrack/pkg/email"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/platform/sentinel"
	"healthtrack/pkg/platform/tx"
	"healthtrack/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Principal) error
	FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error)
	FindByEmail(ctx context.Context, address string) (*models.Principal, error)
	UpdateProfile(ctx context.Context, p *models.Principal) error
	AssignRole(ctx context.Context, a models.RoleAssignment) error
	RoleOf(ctx context.Context, principalID id.PrincipalID) (id.Role, error)
}

type DoctorProfiles interface {
	Create(ctx context.Context, profile *doctormodels.DoctorProfile) error
}

type TokenIssuer interface {
	GenerateAccessToken(principalID id.PrincipalID, expiresIn time.Duration) (string, time.Time, error)
}

type Authorizer interface {
	Require(ctx context.Context, principalID id.PrincipalID, action authz.Action) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RoleReader serves ResolveRole. It may be cached.
type RoleReader interface {
	RoleOf(ctx context.Context, principalID id.PrincipalID) (id.Role, error)
}

const defaultTokenTTL = 15 * time.Minute

type Service struct {
	principals     Store
	doctors        DoctorProfiles
	tokens         TokenIssuer
	authorizer     Authorizer
	roles          RoleReader
	tx             tx.Runner
	auditPublisher AuditPublisher
	logger         *slog.Logger
	tokenTTL       time.Duration
	bcryptCost     int
	dummyHash      []byte
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTx(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithRoleReader replaces the store as the source for ResolveRole.
func WithRoleReader(roles RoleReader) Option {
	return func(s *Service) {
		s.roles = roles
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

// WithBcryptCost lowers the hashing cost in tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(principals Store, doctors DoctorProfiles, tokens TokenIssuer, authorizer Authorizer, opts ...Option) (*Service, error) {
	if principals == nil {
		return nil, errors.New("principal store is required")
	}
	if doctors == nil {
		return nil, errors.New("doctor profile store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	s := &Service{
		principals: principals,
		doctors:    doctors,
		tokens:     tokens,
		authorizer: authorizer,
		roles:      principals,
		logger:     slog.Default(),
		tokenTTL:   defaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = &tx.LocalRunner{}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("healthtrack-timing-equalizer"), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

var tracer = otel.Tracer("healthtrack/principal")

// Register creates the principal, its role assignment and, for doctors, a
// pending doctor profile in one transaction.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.Profile, error) {
	ctx, span := tracer.Start(ctx, "principal.Register")
	defer span.End()

	req.Normalize()
	role, err := req.Validate()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("principal.role", string(role)))
	return s.create(ctx, req, role)
}

// CreateAdmin provisions an administrator. It is used by the bootstrap
// command and is not reachable over HTTP.
func (s *Service) CreateAdmin(ctx context.Context, address, password, fullName string) (*models.Profile, error) {
	req := models.RegisterRequest{Email: address, Password: password, FullName: fullName, Role: string(id.RoleAdmin)}
	req.Normalize()
	if !email.IsValid(req.Email) {
		return nil, dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if err := models.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	return s.create(ctx, req, id.RoleAdmin)
}

func (s *Service) create(ctx context.Context, req models.RegisterRequest, role id.Role) (*models.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	principal := &models.Principal{
		ID:           id.NewPrincipalID(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Phone:        req.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.principals.Create(txCtx, principal); err != nil {
			return err
		}
		if err := s.principals.AssignRole(txCtx, models.RoleAssignment{
			PrincipalID: principal.ID,
			Role:        role,
			AssignedAt:  now,
		}); err != nil {
			return err
		}
		if role == id.RoleDoctor {
			profile, err := doctormodels.NewDoctorProfile(principal.ID, *req.Doctor, now)
			if err != nil {
				return err
			}
			if err := s.doctors.Create(txCtx, profile); err != nil {
				return err
			}
		}
		if s.auditPublisher == nil {
			return nil
		}
		return s.auditPublisher.Emit(txCtx, audit.Event{
			Subject:   principal.ID,
			ActorID:   principal.ID,
			Action:    audit.EventPrincipalRegistered,
			TargetID:  principal.ID.String(),
			Outcome:   "success",
			NewStatus: string(role),
		})
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonConflict, "email is already registered")
		}
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register principal")
	}

	s.logger.InfoContext(ctx, "principal registered",
		"principal_id", principal.ID,
		"role", role,
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.NewProfile(principal, role), nil
}

// Login verifies credentials and issues an access token that carries only
// the principal id.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

	principal, err := s.principals.FindByEmail(ctx, email.Normalize(req.Email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Spend the same time as a real comparison.
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.WarnContext(ctx, "login failed",
			"principal_id", principal.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, invalid
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(principal.ID, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	return &models.LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		PrincipalID: principal.ID,
	}, nil
}

// ResolveRole returns the stored role of principalID. Callers may only
// resolve their own role; a principal without an assignment is denied with
// NoRole rather than given a default.
func (s *Service) ResolveRole(ctx context.Context, principalID, callerID id.PrincipalID) (id.Role, error) {
	if principalID != callerID {
		return "", authz.DeniedError(dErrors.ReasonWrongRole)
	}
	role, err := s.roles.RoleOf(ctx, principalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", authz.DeniedError(dErrors.ReasonNoRole)
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve role")
	}
	return role, nil
}

// GetProfile returns a profile to its owner or to an admin.
func (s *Service) GetProfile(ctx context.Context, principalID, callerID id.PrincipalID) (*models.Profile, error) {
	if err := s.requireProfileAccess(ctx, principalID, callerID); err != nil {
		return nil, err
	}
	return s.loadProfile(ctx, principalID)
}

// UpdateProfile changes contact fields for the owner or an admin. Roles are
// not editable here or anywhere else.
func (s *Service) UpdateProfile(ctx context.Context, principalID, callerID id.PrincipalID, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := s.requireProfileAccess(ctx, principalID, callerID); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	principal, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		return nil, translateErr(err, "failed to load principal")
	}
	req.Apply(principal, requestcontext.Now(ctx))
	if err := s.principals.UpdateProfile(ctx, principal); err != nil {
		return nil, translateErr(err, "failed to update profile")
	}
	return s.loadProfile(ctx, principalID)
}

func (s *Service) requireProfileAccess(ctx context.Context, principalID, callerID id.PrincipalID) error {
	if principalID == callerID {
		return s.authorizer.Require(ctx, callerID, authz.ActionManageOwnProfile)
	}
	return s.authorizer.Require(ctx, callerID, authz.ActionManageAnyProfile)
}

func (s *Service) loadProfile(ctx context.Context, principalID id.PrincipalID) (*models.Profile, error) {
	principal, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		return nil, translateErr(err, "failed to load principal")
	}
	role, err := s.principals.RoleOf(ctx, principalID)
	if err != nil {
		return nil, translateErr(err, "failed to load role")
	}
	return models.NewProfile(principal, role), nil
}

func translateErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonNotFound, "principal not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
