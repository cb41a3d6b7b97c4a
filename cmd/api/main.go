package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mealwave/delivery-api/internal/adapters/httpapi"
	memidempotency "github.com/mealwave/delivery-api/internal/adapters/memory/idempotency"
	memlock "github.com/mealwave/delivery-api/internal/adapters/memory/lock"
	memnotifications "github.com/mealwave/delivery-api/internal/adapters/memory/notifications"
	memorderrepo "github.com/mealwave/delivery-api/internal/adapters/memory/orderrepo"
	postgres "github.com/mealwave/delivery-api/internal/adapters/postgres"
	pgidempotency "github.com/mealwave/delivery-api/internal/adapters/postgres/idempotency"
	pgorderrepo "github.com/mealwave/delivery-api/internal/adapters/postgres/orderrepo"
	redislock "github.com/mealwave/delivery-api/internal/adapters/redis/lock"
	"github.com/mealwave/delivery-api/internal/app/orders"
	"github.com/mealwave/delivery-api/internal/domain"
	"github.com/mealwave/delivery-api/internal/gateway"
	"github.com/mealwave/delivery-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/mealwave/delivery-api/internal/platform/clock"
	"github.com/mealwave/delivery-api/internal/platform/config"
	idempotencyport "github.com/mealwave/delivery-api/internal/ports/out/idempotency"
	lockport "github.com/mealwave/delivery-api/internal/ports/out/lock"
	orderrepoport "github.com/mealwave/delivery-api/internal/ports/out/orderrepo"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "8080")

	idemCfg, err := config.LoadIdempotencyConfigFromEnv()
	if err != nil {
		log.Fatal("invalid idempotency config", zap.Error(err))
	}
	gwCfg, err := config.LoadGatewayConfigFromEnv()
	if err != nil {
		log.Fatal("invalid gateway config", zap.Error(err))
	}

	// Auth configuration:
	// - Production: require JWT_* env vars and enforce bearer auth
	// - Local dev: set AUTH_MODE=dev to bypass JWT verification and use X-Debug-Subject
	authMode := getenv("AUTH_MODE", "jwt")
	var (
		authMW    func(http.Handler) http.Handler
		validator gateway.TokenValidator
	)
	switch authMode {
	case "dev":
		authMW = httpapi.NewDevAuthMiddleware(getenv("DEV_SUBJECT", "dev|local"))
		validator = devTokenValidator{}
	default:
		jwtCfg, err := config.LoadJWTConfigFromEnv()
		if err != nil {
			log.Fatal("invalid auth config", zap.Error(err))
		}
		verifier := jwtverifier.New(jwtCfg)
		authMW = httpapi.NewAuthMiddleware(verifier)
		validator = verifier
	}

	clk := platformclock.NewSystemClock()

	storageBackend := getenv("STORAGE_BACKEND", "memory")
	var (
		orderRepo orderrepoport.Repository
		idemStore idempotencyport.Store
		cleanup   func()
	)
	switch storageBackend {
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		pool, err := postgres.NewPool(context.Background(), dsn, postgres.PoolOptions{})
		if err != nil {
			log.Fatal("invalid postgres config", zap.Error(err))
		}
		cleanup = pool.Close

		orderRepo = pgorderrepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool)
	default:
		orderRepo = memorderrepo.NewRepo()
		idemStore = memidempotency.NewStore(clk)
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Lock backend degrades to in-process locking when Redis is not
	// configured; that weakens cross-instance protection but keeps a
	// single node fully covered.
	var locker lockport.Locker
	switch getenv("LOCK_BACKEND", "memory") {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: getenv("REDIS_ADDR", "localhost:6379")})
		locker = redislock.NewLocker(client, idemCfg.LockTTL)
	default:
		locker = memlock.NewLocker(idemCfg.LockTTL, clk)
	}

	gw := gateway.New(gwCfg, validator, memnotifications.NewAcker(), log)
	gw.Start()

	orderSvc := orders.NewService(orderRepo, gw, clk)
	api := httpapi.NewServer(orderSvc)

	idemMW := httpapi.NewIdempotencyMiddleware(idemStore, locker, clk, log, idemCfg, httpapi.DefaultFailurePolicy())
	handler := httpapi.NewRouter(api, authMW, idemMW, gw, gw.Registry())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Expired idempotency records are purged on an interval rather than
	// relying on read-time filtering alone.
	go sweepExpired(ctx, idemStore, clk, idemCfg.SweepInterval, log)

	go func() {
		log.Info("api listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	gw.Shutdown(shutdownCtx)
}

func sweepExpired(ctx context.Context, store idempotencyport.Store, clk platformclock.SystemClock, interval time.Duration, log *zap.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.DeleteExpired(ctx, clk.Now())
			if err != nil {
				log.Warn("idempotency sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired idempotency records", zap.Int("count", n))
			}
		}
	}
}

// devTokenValidator accepts websocket tokens of the form "subject" or
// "subject:role" without signature checks. Dev mode only.
type devTokenValidator struct{}

func (devTokenValidator) Verify(_ context.Context, token string) (domain.Identity, error) {
	sub, role, found := strings.Cut(token, ":")
	if sub == "" {
		return domain.Identity{}, errors.New("empty subject")
	}
	id := domain.Identity{Subject: domain.SubjectID(sub), Role: domain.RoleCustomer}
	if found && domain.ValidRole(domain.Role(role)) {
		id.Role = domain.Role(role)
	}
	return id, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
