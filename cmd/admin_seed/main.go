// Command admin_seed provisions the first administrator. Admins cannot
// self-register, so this is the only way to create one.
package main

import (
	"context"
	"os"

	"healthtrack/internal/authz"
	jwttoken "healthtrack/internal/jwt_token"
	"healthtrack/internal/platform/config"
	"healthtrack/internal/platform/logger"
	principalservice "healthtrack/internal/principal/service"
	"healthtrack/internal/storage"
	dErrors "healthtrack/pkg/domain-errors"
	"healthtrack/pkg/platform/audit/publishers/compliance"
)

func main() {
	cfg, err := config.FromEnv()
	log := logger.New(cfg.Log)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	boot, err := config.BootstrapFromEnv()
	if err != nil {
		log.Error("invalid bootstrap configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	stores, err := storage.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = stores.Close() }()
	if stores.Mode == storage.ModeMemory {
		log.Warn("seeding in-memory stores; the admin disappears when this process exits")
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	svc, err := principalservice.New(stores.Principals, stores.Doctors, jwt,
		authz.New(stores.Principals, stores.Doctors, authz.WithLogger(log)),
		principalservice.WithLogger(log),
		principalservice.WithTx(stores.Tx),
		principalservice.WithAuditPublisher(compliance.New(stores.Audit, compliance.WithLogger(log))),
	)
	if err != nil {
		log.Error("failed to build principal service", "error", err)
		os.Exit(1)
	}

	profile, err := svc.CreateAdmin(ctx, boot.AdminEmail, boot.AdminPassword, boot.AdminName)
	switch {
	case dErrors.HasCode(err, dErrors.CodeConflict):
		log.Info("admin already exists", "email", boot.AdminEmail)
	case err != nil:
		log.Error("failed to create admin", "error", err)
		os.Exit(1)
	default:
		log.Info("admin created", "principal_id", profile.ID, "email", profile.Email)
	}
}
