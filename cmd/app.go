package cmd

import (
	"fmt"
	"net/http"

	"smartlaunch/internal/auth"
	"smartlaunch/internal/config"
	"smartlaunch/internal/fhir"
	"smartlaunch/internal/httpclient"
	"smartlaunch/internal/login"
	"smartlaunch/internal/storage"
	"smartlaunch/pkg/logging"
	"smartlaunch/pkg/smart"
)

// app holds the components a command needs, built from the configuration.
type app struct {
	config     config.Config
	storage    storage.Storage
	httpClient *http.Client
	sessions   *auth.SessionStore
	tokens     *auth.TokenStore
	service    *auth.Service
}

// newApp loads the configuration from --config-path and wires the
// authorization service with its stores. Call close when done.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient, err := httpclient.New(cfg.HTTPClientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	storageCfg, err := cfg.StorageConfig(configPath)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", storageCfg.Type, err)
	}

	resolver := smart.NewResolver(
		smart.WithHTTPClient(httpClient),
		smart.WithLogger(logging.Logger()),
		smart.WithCacheTTL(cfg.Discovery.CacheTTL),
	)

	opts := []auth.Option{
		auth.WithHTTPClient(httpClient),
		auth.WithResolver(resolver),
		auth.WithSessionTTL(cfg.Session.TTL),
	}
	if cfg.OIDC.VerifyIDToken {
		opts = append(opts, auth.WithIDTokenVerifier(auth.NewOIDCVerifier(cfg.Smart.ClientID, httpClient)))
	}

	sessions := auth.NewSessionStore(store)
	return &app{
		config:     cfg,
		storage:    store,
		httpClient: httpClient,
		sessions:   sessions,
		tokens:     auth.NewTokenStore(store),
		service:    auth.NewService(cfg.ClientOptions(), sessions, opts...),
	}, nil
}

// loginFlow returns a login flow using authorizer for the interactive part.
func (a *app) loginFlow(authorizer login.Authorizer) *login.Flow {
	return login.NewFlow(a.service, a.tokens, authorizer)
}

// fhirFactory returns the bearer client factory for the configured server.
func (a *app) fhirFactory() *fhir.Factory {
	return fhir.NewFactory(a.config.Smart.FHIRBaseURL, a.tokens, a.httpClient)
}

func (a *app) close() {
	if v, ok := a.storage.(*storage.ValkeyStorage); ok {
		v.Close()
	}
}
