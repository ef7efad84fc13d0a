// Package app wires the clearing service from config. The binaries under cmd/
// differ only in which parts of it they drive.
package app

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/ariefcatur/renu-clearing/internal/breaker"
	"github.com/ariefcatur/renu-clearing/internal/clearing"
	"github.com/ariefcatur/renu-clearing/internal/config"
	"github.com/ariefcatur/renu-clearing/internal/creditguard"
	"github.com/ariefcatur/renu-clearing/internal/dorix"
	kafkax "github.com/ariefcatur/renu-clearing/internal/kafka"
	"github.com/ariefcatur/renu-clearing/internal/lifecycle"
	"github.com/ariefcatur/renu-clearing/internal/logging"
	"github.com/ariefcatur/renu-clearing/internal/management"
	"github.com/ariefcatur/renu-clearing/internal/metrics"
	"github.com/ariefcatur/renu-clearing/internal/notify"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/payplus"
	"github.com/ariefcatur/renu-clearing/internal/postgres"
	"github.com/ariefcatur/renu-clearing/internal/redisx"
	"github.com/ariefcatur/renu-clearing/internal/transport"
)

type App struct {
	Config    config.Config
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Events    *kafkax.Producer
	Alerts    *kafkax.Producer
	Breakers  *breaker.Registry
	Providers *metrics.ProviderMetrics
	Repo      *orders.Repo
	Cache     *redisx.StatusCache
	Lifecycle *lifecycle.Service
}

// New connects Postgres and Redis, starts the Kafka producers, and builds the
// lifecycle service. Producers stop when ctx ends; call Close after that.
func New(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}

	a := &App{Config: cfg, DB: db}
	a.Redis = redisx.New(cfg.RedisAddr)
	a.Events = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderState, 1024)
	a.Events.Start(ctx)
	a.Alerts = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOpsNotifications, 256)
	a.Alerts.Start(ctx)

	a.Providers = metrics.NewProviderMetrics(reg)
	a.Breakers = breaker.NewRegistry(breaker.Settings{
		MaxRetries:   cfg.BreakerMaxRetries,
		ResetTimeout: cfg.BreakerResetTimeout,
		OnStateChange: func(provider string, from, to gobreaker.State) {
			a.Providers.BreakerChanged(provider, from, to)
			logging.Log(logging.Fields{Service: cfg.ServiceName, Provider: provider, Step: "breaker", Status: from.String() + "->" + to.String()})
		},
	})

	tr := transport.New(cfg.HTTPTimeout)
	clr := clearing.NewRegistry(map[orders.ClearingProvider]clearing.Provider{
		orders.ClearingCreditGuard: &creditguard.Clearing{
			Transport:  tr,
			Breakers:   a.Breakers,
			URL:        cfg.CreditGuardURL,
			SuccessURL: cfg.CreditGuardSuccessURL,
			ErrorURL:   cfg.CreditGuardErrorURL,
			CancelURL:  cfg.CreditGuardCancelURL,
			IDs:        ids,
		},
		orders.ClearingPayPlus: &payplus.Clearing{
			Transport:   tr,
			Breakers:    a.Breakers,
			BaseURL:     cfg.PayPlusURL,
			CallbackURL: cfg.PayPlusCallbackURL,
		},
	}, a.Providers.Observe)
	mgmt := management.NewRegistry(map[orders.ManagementProvider]management.Provider{
		orders.ManagementDorix: &dorix.Management{
			Transport: tr,
			Breakers:  a.Breakers,
			BaseURL:   cfg.DorixURL,
			Token:     cfg.DorixToken,
		},
		orders.ManagementRenu: management.Renu{},
	}, a.Providers.Observe)

	a.Repo = &orders.Repo{DB: db}
	a.Cache = &redisx.StatusCache{RDB: a.Redis}
	a.Lifecycle = &lifecycle.Service{
		Orders:            a.Repo,
		Integrations:      &orders.IntegrationRepo{DB: db},
		Locks:             redisx.NewLocker(a.Redis),
		Events:            a.Events,
		Cache:             a.Cache,
		Notifier:          &notify.Kafka{Producer: a.Alerts, Service: cfg.ServiceName},
		Clearing:          clr,
		Management:        mgmt,
		ServiceName:       cfg.ServiceName,
		ValidateCallbacks: cfg.ValidateCallbacks,
	}
	return a, nil
}

// Close flushes the producers and releases connections.
func (a *App) Close() {
	a.Events.Close()
	a.Alerts.Close()
	a.Events.WaitClosed()
	a.Alerts.WaitClosed()
	_ = a.Redis.Close()
	a.DB.Close()
}
