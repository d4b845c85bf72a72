package portalauth

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openclinic/portalauth/jwt"
	"github.com/openclinic/portalauth/mail"
	"github.com/openclinic/portalauth/password"
)

// Builder assembles an Engine step by step. Call [New], chain the With
// options, then [Builder.Build]:
//
//	engine, err := portalauth.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithPaymentGateway(gw).
//		WithMailSender(sender).
//		Build()
//
// A credential store is mandatory. Everything else has a working default:
// [DefaultConfig], a no-op mail sender, a nop logger, and a no-op audit
// sink.
type Builder struct {
	config     Config
	configSet  bool
	store      CredentialStore
	gateway    PaymentGateway
	mailer     mail.Sender
	logger     *zap.Logger
	auditSink  AuditSink
	metricsSet bool
	metricsOn  bool
}

// New starts a builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithPaymentGateway(gw PaymentGateway) *Builder {
	b.gateway = gw
	return b
}

func (b *Builder) WithMailSender(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.metricsOn = enabled
	b.metricsSet = true
	return b
}

// Build validates the configuration and wires the engine. The returned
// engine owns its audit dispatcher; call [Engine.Close] when done.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config
	if !b.configSet {
		cfg = DefaultConfig()
	}
	if b.metricsSet {
		cfg.Metrics.Enabled = b.metricsOn
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("portalauth: %w", err)
	}
	if b.store == nil {
		return nil, errors.New("portalauth: credential store required")
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        "portalauth",
	})
	if err != nil {
		return nil, fmt.Errorf("portalauth: %w", err)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("portalauth: %w", err)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = mail.NopSender{Logger: logger}
	}

	return &Engine{
		config:       cfg,
		store:        b.store,
		gateway:      b.gateway,
		mailer:       mailer,
		passwordHash: hasher,
		jwtManager:   jwtManager,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
		logger:       logger,
	}, nil
}
