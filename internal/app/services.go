package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/observability"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/receiving"
	"github.com/lastdino/matex-sub001/internal/shared"
	"github.com/lastdino/matex-sub001/internal/units"
)

// ServicesParams groups the infrastructure shared by the server and the worker.
type ServicesParams struct {
	Config   *Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Notifier inventory.Notifier
}

// Services holds the wired domain services.
type Services struct {
	Units       *units.Service
	Inventory   *inventory.Service
	Completion  *procurement.CompletionService
	Procurement *procurement.Service
	Cascade     *receiving.Cascade
	Receiving   *receiving.Service
	Idempotency *shared.IdempotencyStore
	Audit       *shared.AuditLogger
}

// BuildServices wires repositories and services. Post-commit hooks run in the
// order completion, cascade, stock sync, audit.
func BuildServices(p ServicesParams) *Services {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := shared.NewAuditLogger(p.Pool)
	idem := shared.NewIdempotencyStore(p.Pool)

	var factorCache units.FactorCache
	if p.Redis != nil {
		ttl := defaultUnitCacheTTL
		if p.Config != nil && p.Config.UnitCacheTTL > 0 {
			ttl = p.Config.UnitCacheTTL
		}
		factorCache = units.NewCache(p.Redis, ttl)
	}
	unitService := units.NewService(units.NewRepository(p.Pool), factorCache)

	inventoryService := inventory.NewService(inventory.NewRepository(p.Pool), unitService, inventory.ServiceDeps{
		Audit:       audit,
		Idempotency: idem,
		Notifier:    p.Notifier,
		Logger:      logger,
	})

	var observers []procurement.StatusObserver
	if p.Metrics != nil {
		observers = append(observers, p.Metrics)
	}
	orderRepo := procurement.NewRepository(p.Pool)
	completion := procurement.NewCompletionService(orderRepo, inventoryService, unitService, observers...).WithLogger(logger)
	procurementService := procurement.NewService(orderRepo, completion, procurement.ServiceDeps{
		Audit:     audit,
		Observers: observers,
		Logger:    logger,
	})

	receivingRepo := receiving.NewRepository(p.Pool)
	cascade := receiving.NewCascade(receivingRepo, completion, audit, logger)
	lines := receiving.NewLineService(unitService, receiving.NewGuard(unitService), inventoryService)
	deps := receiving.ServiceDeps{
		Hooks: []receiving.PostCommitHook{
			receiving.CompletionHook(completion),
			receiving.CascadeHook(cascade),
			receiving.StockSyncHook(p.Notifier),
			receiving.AuditHook(audit),
		},
		Idempotency: idem,
		Logger:      logger,
	}
	if p.Metrics != nil {
		deps.Metrics = p.Metrics
	}
	receivingService := receiving.NewService(receivingRepo, lines, deps)

	return &Services{
		Units:       unitService,
		Inventory:   inventoryService,
		Completion:  completion,
		Procurement: procurementService,
		Cascade:     cascade,
		Receiving:   receivingService,
		Idempotency: idem,
		Audit:       audit,
	}
}
