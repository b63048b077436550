package dirgate

import (
	"errors"

	"github.com/ashkog/dirgate/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by dirgate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	directory   DirectoryClient
	enrollments EnrollmentStore
	configStore ConfigStore
	sealKey     []byte
	auditSink   AuditSink

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

// WithDirectory describes the withdirectory operation and its observable behavior.
//
// WithDirectory may return an error when input validation, dependency calls, or security checks fail.
// WithDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithDirectory(client DirectoryClient) *Builder {
	b.directory = client
	return b
}

// WithEnrollmentStore overrides the default Redis-backed enrollment store.
func (b *Builder) WithEnrollmentStore(store EnrollmentStore) *Builder {
	b.enrollments = store
	return b
}

// WithEnrollmentSealKey supplies the 32-byte key used to encrypt stored
// TOTP secrets when the default Redis-backed enrollment store is in use.
func (b *Builder) WithEnrollmentSealKey(key []byte) *Builder {
	b.sealKey = append([]byte(nil), key...)
	return b
}

// WithConfigStore describes the withconfigstore operation and its observable behavior.
//
// WithConfigStore may return an error when input validation, dependency calls, or security checks fail.
// WithConfigStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfigStore(store ConfigStore) *Builder {
	b.configStore = store
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

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("directory client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokenManager, err := token.NewManager(token.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	enrollments := b.enrollments
	if enrollments == nil {
		enrollments, err = NewRedisEnrollmentStore(b.redis, b.sealKey)
		if err != nil {
			return nil, err
		}
	}

	configStore := b.configStore
	if configStore == nil {
		configStore = NewRedisConfigStore(b.redis, 0)
	}

	engine := &Engine{
		config:      cfg,
		redis:       b.redis,
		directory:   b.directory,
		enrollments: enrollments,
		configStore: configStore,
		lockout:     newLockoutTracker(b.redis, cfg.Lockout),
		challenges:  newChallengeStore(b.redis),
		stepUp:      newStepUpStore(b.redis),
		revoked:     newDenyList(b.redis),
		tokens:      tokenManager,
		totp:        newTOTPManager(cfg.TOTP),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
	}

	b.built = true
	return engine, nil
}
