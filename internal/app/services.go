package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/platform/cache"
	"github.com/shiftledger/shiftledger/internal/pnl"
	"github.com/shiftledger/shiftledger/internal/reconcile"
	"github.com/shiftledger/shiftledger/internal/shared"
)

// Services bundles the core services shared by the server, worker and CLI.
type Services struct {
	Ledger    *ledger.Service
	Reconcile *reconcile.Service
	Engine    *reconcile.Engine
	PnL       *pnl.Service
}

// NewServices wires repositories, locks and caches into the core services.
// redisClient may be nil, which disables locking and the snapshot cache.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reconTol, err := cfg.ReconTolerances()
	if err != nil {
		return nil, err
	}
	tag, err := language.Parse(cfg.ReconLanguage)
	if err != nil {
		return nil, fmt.Errorf("RECON_LANGUAGE: %w", err)
	}

	var locker *shared.RedisLocker
	var snapshotCache *cache.Cache
	if redisClient != nil {
		locker = shared.NewRedisLocker(redisClient, cfg.LedgerLockTTL)
		snapshotCache = cache.NewCache(redisClient, "pnl", cfg.PnLCacheTTL)
	}

	declarations := ledger.NewStockForms(pool, logger)
	ledgerCfg := ledger.ServiceConfig{
		Tolerances:   cfg.LedgerTolerances(),
		Declarations: declarations,
		Auditor:      shared.NewAuditLogger(pool),
		Logger:       logger,
	}
	pnlOpts := pnl.Options{Logger: logger}
	// Typed nil pointers must not leak into the interfaces.
	if locker != nil {
		ledgerCfg.Locker = locker
		pnlOpts.Locker = locker
		pnlOpts.Cache = snapshotCache
	}
	ledgerService := ledger.NewService(ledger.NewRepository(pool), ledger.NewPOSUsage(pool), ledgerCfg)

	engine := reconcile.NewEngine(reconTol, tag)
	reconcileService := reconcile.NewService(engine, reconcile.NewRepository(pool, declarations, logger), logger)

	return &Services{
		Ledger:    ledgerService,
		Reconcile: reconcileService,
		Engine:    engine,
		PnL:       pnl.NewService(pnl.NewRepository(pool), pnlOpts),
	}, nil
}
