package goCred

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/rate"
	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/secret"
	"github.com/redis/go-redis/v9"
)

// Builder wires an [Engine]. It is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	secrets     *secret.Resolver
	principals  PrincipalStore
	revocations RevocationStore
	notifier    Notifier
	cipher      FieldCipher
	federated   FederatedVerifier
	auditSink   AuditSink
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSecrets supplies the per-level signing secrets. Required.
func (b *Builder) WithSecrets(r *secret.Resolver) *Builder {
	b.secrets = r
	return b
}

// WithPrincipalStore supplies principal persistence. Required.
func (b *Builder) WithPrincipalStore(s PrincipalStore) *Builder {
	b.principals = s
	return b
}

// WithRevocationStore supplies the revocation list. Required.
func (b *Builder) WithRevocationStore(s RevocationStore) *Builder {
	b.revocations = s
	return b
}

// WithRedis enables the sign-in, sign-up and OTP throttles. Without it the
// engine runs unthrottled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithFieldCipher(c FieldCipher) *Builder {
	b.cipher = c
	return b
}

func (b *Builder) WithFederatedVerifier(v FederatedVerifier) *Builder {
	b.federated = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for token stamps and OTP expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.secrets == nil {
		return nil, fmt.Errorf("%w: signature secrets", ErrConfigurationMissing)
	}
	if b.principals == nil {
		return nil, errors.New("principal store required")
	}
	if b.revocations == nil {
		return nil, errors.New("revocation store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}

	engine := &Engine{
		config:      cfg,
		secrets:     b.secrets,
		principals:  b.principals,
		revocations: b.revocations,
		notifier:    notifier,
		cipher:      b.cipher,
		federated:   b.federated,
		logger:      logger,
		now:         now,
	}

	if b.redis != nil {
		engine.signInLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:     cfg.Security.EnableIPThrottle,
			MaxSignInAttempts:    cfg.Security.MaxSignInAttempts,
			SignInCooldownPeriod: cfg.Security.SignInCooldown,
		})
		engine.otpLimiter = limiters.NewOTPLimiter(b.redis, limiters.OTPConfig{
			MaxRequests:        cfg.OTP.MaxRequests,
			RequestWindow:      cfg.OTP.RequestWindow,
			MaxConfirmFailures: cfg.OTP.MaxConfirmFailures,
			ConfirmWindow:      cfg.OTP.ConfirmWindow,
		})
		if cfg.Security.MaxSignUpAttempts > 0 {
			engine.signUpLimiter = limiters.NewAccountCreationLimiter(b.redis, limiters.AccountConfig{
				EnableIdentifierThrottle: true,
				EnableIPThrottle:         cfg.Security.EnableIPThrottle,
				MaxAttempts:              cfg.Security.MaxSignUpAttempts,
				Cooldown:                 cfg.Security.SignUpCooldown,
			})
		}
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	argon, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	otpHasher, err := password.NewBcrypt(cfg.Password.BcryptCost)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(argon, otpHasher)
	if err != nil {
		return nil, err
	}
	engine.passwords = hasher
	engine.otpHasher = otpHasher

	jm, err := jwt.NewManager(jwt.Config{
		Issuer:       cfg.JWT.Issuer,
		Audience:     cfg.JWT.Audience,
		Leeway:       cfg.JWT.Leeway,
		MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm
	engine.flows = engine.newFlowDeps()

	b.built = true

	return engine, nil
}
