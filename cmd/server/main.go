package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"namegate/internal/audit"
	auditstore "namegate/internal/audit/store"
	clientstore "namegate/internal/clients/store"
	consentservice "namegate/internal/consent/service"
	consentstore "namegate/internal/consent/store"
	"namegate/internal/jwtclaims"
	"namegate/internal/platform/config"
	"namegate/internal/platform/httpserver"
	"namegate/internal/platform/logger"
	"namegate/internal/platform/metrics"
	"namegate/internal/platform/postgres"
	platformredis "namegate/internal/platform/redis"
	profileservice "namegate/internal/profile/service"
	profilestore "namegate/internal/profile/store"
	registryservice "namegate/internal/registry/service"
	registrystore "namegate/internal/registry/store"
	"namegate/internal/resolution"
	sessionservice "namegate/internal/session/service"
	sessionstore "namegate/internal/session/store"
	httptransport "namegate/internal/transport/http"
	txcontext "namegate/pkg/platform/tx"
)

const (
	shutdownTimeout = 10 * time.Second
	sessionCacheTTL = 2 * time.Hour
)

// profileStore is the full surface of the profile catalog store: the catalog
// service sees the writes, the resolution engine the reads.
type profileStore interface {
	profileservice.Store
	resolution.ProfileSource
}

// consentStore combines the consent lifecycle port with the read-only views
// the engine and the context-deletion safeguard need.
type consentStore interface {
	consentservice.Store
	resolution.ConsentSource
	profileservice.ConsentChecker
}

type clientStore interface {
	sessionservice.ClientSource
	registryservice.ClientSource
}

type bindingStore interface {
	registryservice.Store
	sessionservice.BindingStore
}

// storeSet is one coherent persistence backend.
type storeSet struct {
	profiles profileStore
	consents consentStore
	clients  clientStore
	bindings bindingStore
	sessions sessionstore.Store
	audits   audit.Store
	runner   txcontext.Runner
	db       *sql.DB
}

func memoryStores() *storeSet {
	return &storeSet{
		profiles: profilestore.NewInMemoryStore(),
		consents: consentstore.NewInMemoryStore(),
		clients:  clientstore.NewInMemoryStore(),
		bindings: registrystore.NewInMemoryStore(),
		sessions: sessionstore.NewInMemoryStore(),
		audits:   auditstore.NewInMemoryStore(),
		runner:   txcontext.PassthroughRunner{},
	}
}

func postgresStores(ctx context.Context, databaseURL string) (*storeSet, error) {
	db, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &storeSet{
		profiles: profilestore.NewPostgres(db),
		consents: consentstore.NewPostgres(db),
		clients:  clientstore.NewPostgres(db),
		bindings: registrystore.NewPostgres(db),
		sessions: sessionstore.NewPostgres(db),
		audits:   auditstore.NewPostgres(db),
		runner:   txcontext.NewSQLRunner(db),
		db:       db,
	}, nil
}

func run(ctx context.Context) error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	var (
		stores *storeSet
		err    error
	)
	if cfg.DatabaseURL != "" {
		stores, err = postgresStores(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer stores.db.Close()
		log.Info("using postgres storage")
	} else {
		stores = memoryStores()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	sessions := stores.sessions
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = sessionstore.NewCached(sessions, redisClient, log, sessionCacheTTL)
		log.Info("session cache enabled")
	}

	recorder := audit.NewRecorder(stores.audits,
		audit.WithLogger(log),
		audit.WithDropCounter(m),
	)

	engine := resolution.New(stores.consents, stores.profiles,
		resolution.WithLogger(log),
		resolution.WithTierRecorder(m),
		resolution.WithAuditPublisher(recorder),
	)

	signer, err := jwtclaims.NewSigner([]byte(cfg.JWTSigningKey), cfg.Issuer)
	if err != nil {
		return fmt.Errorf("jwt signer: %w", err)
	}

	profileSvc := profileservice.New(stores.profiles, stores.consents,
		profileservice.WithLogger(log))
	consentSvc := consentservice.New(stores.consents, stores.profiles,
		consentservice.WithLogger(log),
		consentservice.WithTransitionRecorder(m))
	registrySvc := registryservice.New(stores.bindings, stores.profiles, stores.clients,
		registryservice.WithLogger(log))
	sessionSvc := sessionservice.New(sessions, stores.clients, stores.bindings,
		stores.profiles, engine, signer, stores.runner,
		sessionservice.WithLogger(log),
		sessionservice.WithMetrics(m))

	router := httptransport.NewRouter(httptransport.Handlers{
		Profile:  httptransport.NewProfileHandler(profileSvc, log),
		Consent:  httptransport.NewConsentHandler(consentSvc, log),
		Registry: httptransport.NewRegistryHandler(registrySvc, log),
		Resolve:  httptransport.NewResolveHandler(engine, log),
		Session:  httptransport.NewSessionHandler(sessionSvc, log),
		Audit:    httptransport.NewAuditHandler(recorder, log),
	}, log, m)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := recorder.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting namegate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "namegate: %v\n", err)
		os.Exit(1)
	}
}
