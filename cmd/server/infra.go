package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"healthtrack/internal/platform/config"
	"healthtrack/internal/platform/kafka"
	platformredis "healthtrack/internal/platform/redis"
	"healthtrack/internal/principal/rolecache"
	principalservice "healthtrack/internal/principal/service"
	rlmetrics "healthtrack/internal/ratelimit/metrics"
	rlmiddleware "healthtrack/internal/ratelimit/middleware"
	"healthtrack/internal/ratelimit/store/bucket"
	"healthtrack/internal/storage"
	httptransport "healthtrack/internal/transport/http"
	"healthtrack/pkg/platform/audit/worker"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
	topicSetupTimeout     = 10 * time.Second
)

// infra holds the backing services of one process.
type infra struct {
	*storage.Stores

	redis     *platformredis.Client
	producer  *kafka.Producer
	publisher worker.Publisher
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	stores, err := storage.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	in := &infra{Stores: stores, publisher: worker.LogPublisher{Logger: log}}

	in.redis, err = platformredis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}

	if len(cfg.Kafka.Brokers) > 0 {
		in.producer, err = kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			in.Close()
			return nil, err
		}
		setupCtx, cancel := context.WithTimeout(ctx, topicSetupTimeout)
		err = in.producer.EnsureTopic(setupCtx, auditTopicPartitions, auditTopicReplication)
		cancel()
		if err != nil {
			in.Close()
			return nil, err
		}
		in.publisher = in.producer
	} else {
		log.WarnContext(ctx, "KAFKA_BROKERS not set, audit outbox is relayed to the log")
	}
	return in, nil
}

// roleReader serves ResolveRole from Redis when it is configured.
func (in *infra) roleReader(cfg config.Server, log *slog.Logger) principalservice.RoleReader {
	if in.redis == nil {
		return in.Principals
	}
	return rolecache.New(in.Principals, in.redis.Client, cfg.Redis.RoleCacheTTL, log)
}

// authRateLimit shares limits across replicas through Redis when it is
// configured.
func (in *infra) authRateLimit(cfg config.Server, log *slog.Logger) func(http.Handler) http.Handler {
	var store rlmiddleware.BucketStore = bucket.NewInMemoryBucketStore()
	if in.redis != nil {
		store = bucket.NewRedisBucketStore(in.redis.Client)
	}
	mw := rlmiddleware.New(store, cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow, log,
		rlmiddleware.WithMetrics(rlmetrics.New()))
	return mw.RateLimitAuth
}

func (in *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{
		"database": in.Health,
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.producer != nil {
		checks["kafka"] = in.producer.Health
	}
	return checks
}

func (in *infra) Close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	_ = in.Stores.Close()
}
