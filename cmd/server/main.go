package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"healthtrack/internal/authz"
	doctorhandler "healthtrack/internal/doctor/handler"
	doctormetrics "healthtrack/internal/doctor/metrics"
	doctorservice "healthtrack/internal/doctor/service"
	jwttoken "healthtrack/internal/jwt_token"
	kychandler "healthtrack/internal/kyc/handler"
	kycmetrics "healthtrack/internal/kyc/metrics"
	kycservice "healthtrack/internal/kyc/service"
	"healthtrack/internal/platform/config"
	"healthtrack/internal/platform/httpserver"
	"healthtrack/internal/platform/logger"
	"healthtrack/internal/platform/metrics"
	principalhandler "healthtrack/internal/principal/handler"
	principalservice "healthtrack/internal/principal/service"
	httptransport "healthtrack/internal/transport/http"
	"healthtrack/pkg/platform/audit/publishers/compliance"
	"healthtrack/pkg/platform/audit/worker"
)

// main wires the stores, services and transport, then runs the HTTP server
// and the outbox relay until a signal arrives.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)
	if cfg.UsesDevSigningKey() {
		log.Warn("JWT_SIGNING_KEY not set, using the development key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	deps, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	auditPublisher := compliance.New(deps.Audit,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	authorizer := authz.New(deps.Principals, deps.Doctors,
		authz.WithLogger(log),
		authz.WithMetrics(authz.NewMetrics()),
		authz.WithSecurityAudit(deps.Audit),
	)
	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)

	principals, err := principalservice.New(deps.Principals, deps.Doctors, jwt, authorizer,
		principalservice.WithLogger(log),
		principalservice.WithTx(deps.Tx),
		principalservice.WithAuditPublisher(auditPublisher),
		principalservice.WithRoleReader(deps.roleReader(cfg, log)),
		principalservice.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return err
	}
	doctors, err := doctorservice.New(deps.Doctors, authorizer,
		doctorservice.WithLogger(log),
		doctorservice.WithTx(deps.Tx),
		doctorservice.WithAuditPublisher(auditPublisher),
		doctorservice.WithMetrics(doctormetrics.New()),
	)
	if err != nil {
		return err
	}
	kyc, err := kycservice.New(deps.Kyc, authorizer,
		kycservice.WithLogger(log),
		kycservice.WithTx(deps.Tx),
		kycservice.WithAuditPublisher(auditPublisher),
		kycservice.WithMetrics(kycmetrics.New()),
	)
	if err != nil {
		return err
	}

	principalRoutes := principalhandler.New(principals, log)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		Metrics:        metrics.New(),
		MetricsHandler: metrics.Handler(),
		AuthRateLimit:  deps.authRateLimit(cfg, log),
		Public:         []httptransport.PublicRoutes{principalRoutes},
		Protected: []httptransport.Routes{
			principalRoutes,
			doctorhandler.New(doctors, authorizer, log),
			kychandler.New(kyc, log),
		},
		Health: deps.healthChecks(),
	})

	srv := httpserver.New(cfg.Addr, router)
	relay := worker.NewWorker(deps.Audit, deps.publisher,
		worker.WithLogger(log),
		worker.WithInterval(cfg.Outbox.Interval),
		worker.WithBatchSize(cfg.Outbox.BatchSize),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting healthtrack", "addr", cfg.Addr, "storage", deps.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("healthtrack stopped")
	return nil
}
