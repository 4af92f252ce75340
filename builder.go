package tokenlife

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tokenlife/tokenlife/internal/rate"
	"github.com/tokenlife/tokenlife/jwt"
	"github.com/tokenlife/tokenlife/permission"
	"github.com/tokenlife/tokenlife/session"
)

// Builder defines a public type used by tokenlife APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client
	store  session.Store

	roles []string

	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStore overrides the session store that Build would otherwise
// construct from the Redis client. Use it to plug in the in-memory
// store for tests or a SQL-backed store for durable sessions.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithRoles describes the withroles operation and its observable behavior.
//
// WithRoles may return an error when input validation, dependency calls, or security checks fail.
// WithRoles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRoles(roles []string) *Builder {
	b.roles = roles
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build assembles the [Engine] from the configured parts. A builder can
// be used once.
//
// The session store is resolved in order: an explicit [Builder.WithStore]
// store, then a Redis-backed store constructed from [Builder.WithRedis].
// Rate limiting always requires the Redis client; throttles enabled
// without one are inactive, and ProductionMode refuses that combination.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil && b.redis == nil {
		return nil, errors.New("session store or redis client required")
	}

	throttleEnabled := cfg.RateLimit.EnableIssueThrottle || cfg.RateLimit.EnableRefreshThrottle
	if cfg.Security.ProductionMode && throttleEnabled && b.redis == nil {
		return nil, errors.New("ProductionMode requires redis client for rate limiting")
	}

	// -------- ROLE REGISTRY --------
	var registry *permission.Registry
	if len(b.roles) > 0 {
		registry = permission.NewRegistry()
		for _, role := range b.roles {
			if err := registry.Register(role); err != nil {
				return nil, err
			}
		}
		registry.Freeze()
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil {
		store = session.NewStore(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.Session.MaxLifetime,
			cfg.Session.RevokedRetention,
		)
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		registry:     registry,
		sessionStore: store,
		now:          time.Now,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIssueThrottle:     cfg.RateLimit.EnableIssueThrottle,
			MaxIssueAttempts:        cfg.RateLimit.MaxIssueAttempts,
			IssueCooldownDuration:   cfg.RateLimit.IssueCooldownDuration,
			EnableRefreshThrottle:   cfg.RateLimit.EnableRefreshThrottle,
			MaxRefreshAttempts:      cfg.RateLimit.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.RateLimit.RefreshCooldownDuration,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    cfg.JWT.RequireIAT,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
