package container

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/ratelimiter/internal/audit"
	auditstore "github.com/serroba/ratelimiter/internal/audit/store"
	"github.com/serroba/ratelimiter/internal/handlers"
	"github.com/serroba/ratelimiter/internal/health"
	"github.com/serroba/ratelimiter/internal/messaging"
	"github.com/serroba/ratelimiter/internal/metrics"
	"github.com/serroba/ratelimiter/internal/middleware"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/serroba/ratelimiter/internal/store"
	"go.uber.org/zap"
)

// RedisClient closes the shared Redis connection on injector shutdown.
type RedisClient struct {
	redis.UniversalClient
}

func (c *RedisClient) Shutdown() error {
	return c.Close()
}

// PostgresPool closes the connection pool on injector shutdown.
type PostgresPool struct {
	*pgxpool.Pool
}

func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

// LoggerPackage provides the zap logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// RedisPackage provides the Redis client.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisClient{UniversalClient: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides the rejection log. audit.Store is PostgreSQL when
// a URL is configured and a logging no-op otherwise.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)

		pool, err := pgxpool.New(context.Background(), opts.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})

	do.Provide(i, func(i *do.Injector) (*store.PostgresRejectionStore, error) {
		pool, err := do.Invoke[*PostgresPool](i)
		if err != nil {
			return nil, err
		}

		rejections := store.NewPostgresRejectionStore(pool.Pool)
		if err := rejections.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("ensure rejections schema: %w", err)
		}

		return rejections, nil
	})

	do.Provide(i, func(i *do.Injector) (audit.Store, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.PostgresURL == "" {
			return auditstore.NewNoop(do.MustInvoke[*zap.Logger](i)), nil
		}

		return do.Invoke[*store.PostgresRejectionStore](i)
	})
}

// RateLimitPackage provides the limiter store, the policy limiter and the
// scope resolver.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (ratelimit.Store, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.StoreBackend {
		case BackendRedis:
			client := do.MustInvoke[*RedisClient](i)

			return store.NewRateLimitRedisStore(client.UniversalClient), nil
		case BackendMemory:
			return store.NewRateLimitMemoryStore(), nil
		default:
			return nil, fmt.Errorf("unknown store backend %q", opts.StoreBackend)
		}
	})

	do.Provide(i, func(i *do.Injector) (*ratelimit.PolicyLimiter, error) {
		opts := do.MustInvoke[*Options](i)

		policy, err := opts.Policy()
		if err != nil {
			return nil, err
		}

		keys := ratelimit.NewKeySchema(opts.KeyPrefix)

		return ratelimit.NewPolicyLimiter(do.MustInvoke[ratelimit.Store](i), policy, keys.SlidingWindow)
	})

	do.Provide(i, func(_ *do.Injector) (ratelimit.ScopeResolver, error) {
		return ratelimit.NewOperationScopeResolver(), nil
	})
}

// MetricsPackage provides the Prometheus registry.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*metrics.Registry, error) {
		return metrics.NewRegistry(), nil
	})
}

// PublisherGroupPackage provides the audit event publisher. Publishing is
// disabled, and the publish function nil, when auditing is turned off.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := messaging.NewRedisStreamPublisher(client.UniversalClient, logger)
		if err != nil {
			return nil, fmt.Errorf("create publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[audit.LimitExceededEvent], error) {
		if !do.MustInvoke[*Options](i).Audit {
			return nil, nil
		}

		group, err := do.Invoke[*messaging.PublisherGroup](i)
		if err != nil {
			return nil, err
		}

		return messaging.NewPublishFunc[audit.LimitExceededEvent](group.Publisher(), audit.TopicLimitExceeded), nil
	})
}

// ConsumerGroupPackage provides the consumer group persisting audit events.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (message.Subscriber, error) {
		client := do.MustInvoke[*RedisClient](i)
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		return messaging.NewRedisStreamSubscriber(client.UniversalClient, opts.ConsumerGroup, logger)
	})

	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		subscriber := do.MustInvoke[message.Subscriber](i)
		logger := do.MustInvoke[*zap.Logger](i)

		rejections, err := do.Invoke[audit.Store](i)
		if err != nil {
			return nil, err
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(audit.NewConsumer(subscriber, rejections, logger))

		return group, nil
	})
}

// HTTPPackage provides the router and the Huma API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		router := do.MustInvoke[*chi.Mux](i)
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		limiter := do.MustInvoke[*ratelimit.PolicyLimiter](i)
		resolver := do.MustInvoke[ratelimit.ScopeResolver](i)
		registry := do.MustInvoke[*metrics.Registry](i)

		publish, err := do.Invoke[messaging.Publish[audit.LimitExceededEvent]](i)
		if err != nil {
			return nil, err
		}

		router.Handle("/metrics", registry.Handler())

		api := humachi.New(router, huma.DefaultConfig("Rate Limiter", "1.0.0"))
		api.UseMiddleware(
			middleware.RequestMetaMiddleware(api),
			middleware.PolicyRateLimiter(api, limiter, resolver, registry, publish, logger),
		)

		var checker health.Checker
		if opts.StoreBackend == BackendRedis {
			checker = health.NewRedisChecker(do.MustInvoke[*RedisClient](i).UniversalClient)
		}

		health.RegisterRoutes(api, health.NewHandler(opts.StoreBackend, checker))
		handlers.RegisterRoutes(api, handlers.NewHitHandler(limiter, registry, publish, logger))

		if opts.PostgresURL != "" {
			rejections, err := do.Invoke[*store.PostgresRejectionStore](i)
			if err != nil {
				return nil, err
			}

			handlers.RegisterRejectionRoutes(api, handlers.NewRejectionHandler(rejections, logger))
		}

		return api, nil
	})
}
