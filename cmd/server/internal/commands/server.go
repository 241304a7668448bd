package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/wolfeidau/idsync/internal/auth"
	httpmiddleware "github.com/wolfeidau/idsync/internal/http"
	"github.com/wolfeidau/idsync/internal/httpclient"
	"github.com/wolfeidau/idsync/internal/logger"
	"github.com/wolfeidau/idsync/internal/server"
	"github.com/wolfeidau/idsync/internal/store"
	memorystore "github.com/wolfeidau/idsync/internal/store/memory"
	postgresstore "github.com/wolfeidau/idsync/internal/store/postgres"
	"github.com/wolfeidau/idsync/internal/webhook"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"IDSYNC_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"IDSYNC_CORS_ORIGINS"`

	// Clerk configuration
	ClerkIssuer        string `help:"trusted token issuer" env:"CLERK_JWT_ISSUER"`
	ClerkJWKSURL       string `help:"JWKS endpoint override, defaults to the issuer's well-known path" env:"CLERK_JWKS_URL"`
	ClerkWebhookSecret string `help:"endpoint secret for webhook signature verification" env:"CLERK_WEBHOOK_SECRET"`
	JWKSCacheDir       string `help:"directory for the JWKS HTTP cache, in-memory when empty" env:"IDSYNC_JWKS_CACHE_DIR"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"IDSYNC_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"IDSYNC_POSTGRES_AUTO_MIGRATE"`
}

func (c *ServerCmd) Validate() error {
	if c.ClerkIssuer == "" {
		return errors.New("token issuer is required (--clerk-issuer or CLERK_JWT_ISSUER)")
	}
	if c.ClerkWebhookSecret == "" {
		return errors.New("webhook secret is required (--clerk-webhook-secret or CLERK_WEBHOOK_SECRET)")
	}
	if c.StoreType == "postgres" && c.PostgresStore.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting identity mirror server")

	// Create stores based on store type
	var (
		userStore store.UserStore
		orgStore  store.OrganizationStore
	)

	switch c.StoreType {
	case "postgres":
		// Shared connection pool for both stores
		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		userStore = postgresstore.NewUserStore(pool)
		orgStore = postgresstore.NewOrganizationStore(pool)
		log.Info().Msg("Using PostgreSQL identity stores")

	default:
		userStore = memorystore.NewUserStore()
		orgStore = memorystore.NewOrganizationStore()
		log.Warn().Msg("Using in-memory identity stores, data is lost on restart")
	}

	// Token verification against the issuer's JWKS
	verifier, err := auth.NewClerkVerifier(ctx, auth.ClerkVerifierConfig{
		Issuer:  c.ClerkIssuer,
		JWKSURL: c.ClerkJWKSURL,
		Client:  httpclient.NewCachingClient(c.JWKSCacheDir),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	defer verifier.Close()

	authenticator := auth.NewAuthenticator(verifier, userStore, orgStore)

	signatureVerifier, err := webhook.NewSvixVerifier(c.ClerkWebhookSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook verifier: %w", err)
	}

	reconciler := webhook.NewReconciler(signatureVerifier, userStore, orgStore)

	mux := http.NewServeMux()
	srv := server.New(reconciler, userStore, orgStore)
	srv.Register(mux, authenticator.Middleware())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   c.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := httpmiddleware.RecoverMiddleware()(
		httpmiddleware.ClientIPMiddleware()(
			logger.AccessLog(log)(
				corsHandler.Handler(mux))))

	httpServer := configureHTTPServer(c.Listen, handler)

	log.Info().Str("listen", c.Listen).Str("issuer", c.ClerkIssuer).Msg("Server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
