package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"eduverse-client-go/internal/domain/auth"
	"eduverse-client-go/internal/domain/eventbus"
	eventinfra "eduverse-client-go/internal/domain/eventbus/infrastructure"
	"eduverse-client-go/internal/domain/ledger"
	"eduverse-client-go/internal/domain/mint"
	mintstore "eduverse-client-go/internal/domain/mint/store"
	"eduverse-client-go/internal/domain/resource"
	"eduverse-client-go/internal/domain/wallet"
	platformconfig "eduverse-client-go/internal/platform/config"
	platformerrors "eduverse-client-go/internal/platform/errors"
	platformlogging "eduverse-client-go/internal/platform/logging"
	platformobservability "eduverse-client-go/internal/platform/observability"
	platformstorage "eduverse-client-go/internal/platform/storage"
	httptransport "eduverse-client-go/internal/transport/http"
)

const closeTimeout = 5 * time.Second

type stepFn func(context.Context, *App) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

// Options tunes how an App is assembled.
type Options struct {
	// ConfigPath is the YAML file to load. Missing files fall back to defaults.
	ConfigPath string
	// Config, when set, skips the loader entirely.
	Config *platformconfig.Config
	// Console receives human readable log lines. Defaults to stderr.
	Console io.Writer
	// Confirmer answers the pre-connect wallet prompt. Defaults to a terminal prompt.
	Confirmer wallet.Confirmer
}

// App holds every wired component of the client.
type App struct {
	opts Options

	Config     *platformconfig.Config
	ConfigPath string
	Logger     *platformlogging.Logger
	Bus        *eventbus.Bus
	DB         *gorm.DB
	Journal    *eventbus.Journal

	Session     *auth.SessionStore
	Coordinator *auth.Coordinator
	Auth        *auth.Service
	Navigator   *httptransport.RouteNavigator
	Pipeline    *httptransport.Pipeline
	Resources   *resource.Client

	Wallet *wallet.Connector
	Ledger *ledger.Client
	Store  mintstore.Store
	Saga   *mint.Saga

	client                *resty.Client
	observabilityShutdown platformobservability.ShutdownFunc
	closers               []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// Restored is what a startup restore found.
type Restored struct {
	Session auth.Session
	// SessionErr is set when no session could be re-derived from the refresh cookie.
	SessionErr error
	// Wallet is nil when no account is authorized yet.
	Wallet *wallet.Connection
}

// New runs the init graph and returns a ready App. On failure everything
// already opened is closed again.
func New(ctx context.Context, opts Options) (*App, error) {
	app := &App{opts: opts}
	if err := executeInitSteps(ctx, InitGraph(), app); err != nil {
		app.Close()
		return nil, err
	}
	app.Logger.DebugTag(platformlogging.TagBootstrap, "client ready (config=%s)", displayPath(app.ConfigPath))
	return app, nil
}

// Restore re-derives the session and any already authorized wallet account
// concurrently. It never prompts.
func (a *App) Restore(ctx context.Context) (Restored, error) {
	var out Restored
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		session, err := a.Auth.Restore(groupCtx)
		out.Session, out.SessionErr = session, err
		return nil
	})
	group.Go(func() error {
		conn, err := a.Wallet.RestoreConnected(groupCtx)
		out.Wallet = conn
		return err
	})
	err := group.Wait()
	return out, err
}

// Authenticate restores the session from the refresh cookie and falls back to
// a password login when username is set.
func (a *App) Authenticate(ctx context.Context, username, password string) (auth.Session, error) {
	session, err := a.Auth.Restore(ctx)
	if err == nil && session.Valid() {
		return session, nil
	}
	if username == "" {
		if err == nil {
			err = platformerrors.New(platformerrors.KindAuthExpired, "bootstrap.authenticate", "not signed in")
		}
		return auth.Session{}, err
	}
	return a.Auth.Login(ctx, username, password)
}

// RequireSaga returns the mint saga or explains why minting is unavailable.
func (a *App) RequireSaga() (*mint.Saga, error) {
	if a.Saga == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "bootstrap.mint", "ledger.rpc_url is not configured")
	}
	return a.Saga, nil
}

// RequireLedger returns the ledger client or explains why it is unavailable.
func (a *App) RequireLedger() (*ledger.Client, error) {
	if a.Ledger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "bootstrap.ledger", "ledger.rpc_url is not configured")
	}
	return a.Ledger, nil
}

// Close releases components in reverse order of creation. It is safe to call
// on a partially built App.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.reportRefreshStats()
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := c.close(ctx); err != nil && a.Logger != nil {
			a.Logger.WarnTag(platformlogging.TagBootstrap, "%s did not close cleanly: %v", c.name, err)
		}
		cancel()
	}
	a.closers = nil

	if a.observabilityShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := a.observabilityShutdown(ctx); err != nil && a.Logger != nil {
			a.Logger.WarnTag(platformlogging.TagBootstrap, "observability did not shut down cleanly: %v", err)
		}
		cancel()
		a.observabilityShutdown = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Close()
	}
}

// reportRefreshStats logs how many requests each refresh call served.
func (a *App) reportRefreshStats() {
	if a.Coordinator == nil {
		return
	}
	stats := a.Coordinator.Stats()
	if stats.Flights == 0 {
		return
	}
	if a.Logger != nil {
		a.Logger.DebugTag(platformlogging.TagAuth, "refresh: %d calls served %d requests", stats.Flights, stats.Joined)
	}
	ctx := context.Background()
	platformobservability.RecordMetric(ctx, "auth.refresh.flights", float64(stats.Flights))
	platformobservability.RecordMetric(ctx, "auth.refresh.joined", float64(stats.Joined))
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func executeInitSteps(ctx context.Context, steps []initStep, app *App) error {
	if app == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil app",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, app); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		if app.Logger != nil {
			app.Logger.DebugTag(platformlogging.TagBootstrap, "%s done", step.Title)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the init steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initEventBusStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open local database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openDatabaseStep,
		},
		{
			ID:        "events:attach-journal",
			Title:     "Attach event journal",
			DependsOn: []string{"events:init-bus", "storage:open-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   attachJournalStep,
		},
		{
			ID:        "auth:init-session",
			Title:     "Initialise session and refresh coordinator",
			DependsOn: []string{"events:init-bus"},
			Execute:   initAuthStep,
		},
		{
			ID:        "http:init-pipeline",
			Title:     "Initialise authenticated request pipeline",
			DependsOn: []string{"auth:init-session"},
			Execute:   initPipelineStep,
		},
		{
			ID:        "wallet:init-connector",
			Title:     "Initialise wallet connector",
			DependsOn: []string{"events:init-bus"},
			Kind:      platformerrors.KindWalletUnavailable,
			Execute:   initWalletStep,
		},
		{
			ID:        "ledger:init-client",
			Title:     "Initialise ledger client",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindTransport,
			Execute:   initLedgerStep,
		},
		{
			ID:        "mint:init-store",
			Title:     "Open mint record store",
			DependsOn: []string{"storage:open-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initMintStoreStep,
		},
		{
			ID:        "mint:init-saga",
			Title:     "Initialise mint saga",
			DependsOn: []string{"http:init-pipeline", "wallet:init-connector", "ledger:init-client", "mint:init-store"},
			Execute:   initSagaStep,
		},
	}
}

func loadConfigStep(_ context.Context, app *App) error {
	if app.opts.Config != nil {
		app.Config = app.opts.Config
		return nil
	}
	result, err := platformconfig.NewLoader().Load(app.opts.ConfigPath)
	if err != nil {
		return err
	}
	app.Config = result.Config
	app.ConfigPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, app *App) error {
	cfg := app.Config.Log
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    cfg.Level,
		Dir:      cfg.Dir,
		Filename: cfg.File,
		Console:  app.opts.Console,
		NoColor:  cfg.NoColor,
	})
	if err != nil {
		return err
	}
	app.Logger = logger
	return nil
}

func setupObservabilityStep(ctx context.Context, app *App) error {
	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
		Enabled: app.Config.Observability.Enabled,
	}, app.Logger.Slog())
	if err != nil {
		return err
	}
	app.observabilityShutdown = shutdown
	return nil
}

func initEventBusStep(_ context.Context, app *App) error {
	app.Bus = eventbus.New(eventbus.Options{Logger: app.Logger.Tagged(platformlogging.TagBootstrap)})
	app.onClose("event bus", func(context.Context) error {
		app.Bus.Close()
		return nil
	})
	return nil
}

// openDatabaseStep opens the sqlite file only when the saga store lives there.
func openDatabaseStep(_ context.Context, app *App) error {
	storeCfg := app.Config.Mint.Store
	if storeCfg.Type != mintstore.DriverSQLite {
		return nil
	}
	db, err := platformstorage.Open(storeCfg.SQLite.DSN)
	if err != nil {
		return err
	}
	app.DB = db
	app.onClose("database", func(context.Context) error {
		return platformstorage.Close(db)
	})
	return nil
}

func attachJournalStep(_ context.Context, app *App) error {
	if app.DB == nil {
		return nil
	}
	journal := eventbus.NewJournal(
		eventinfra.NewEventRepository(app.DB),
		app.Logger.Tagged(platformlogging.TagBootstrap),
	)
	if err := journal.Attach(app.Bus); err != nil {
		return err
	}
	app.Journal = journal
	return nil
}

func initAuthStep(_ context.Context, app *App) error {
	apiCfg := app.Config.API
	client, err := httptransport.NewClient(httptransport.ClientConfig{
		BaseURL:   apiCfg.BaseURL,
		Timeout:   apiCfg.Timeout,
		UserAgent: apiCfg.UserAgent,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "auth:init-session", "invalid api settings", err)
	}

	authority := auth.NewHTTPAuthority(client, auth.Paths{
		Refresh:  apiCfg.RefreshPath,
		Identity: apiCfg.IdentityPath,
		Logout:   apiCfg.LogoutPath,
		Login:    apiCfg.SignInPath,
	})
	logger := app.Logger.Tagged(platformlogging.TagAuth)

	app.Session = auth.NewSessionStore()
	app.Coordinator, err = auth.NewCoordinator(auth.CoordinatorOptions{
		Authority: authority,
		Session:   app.Session,
		Logger:    logger,
		Publisher: app.Bus,
	})
	if err != nil {
		return err
	}
	app.Auth = auth.NewService(authority, app.Session, app.Coordinator, logger, app.Bus)
	app.client = client
	return nil
}

// initPipelineStep reuses the authority's client so the refresh cookie is shared.
func initPipelineStep(_ context.Context, app *App) error {
	apiCfg := app.Config.API
	pipeline, err := httptransport.NewPipeline(httptransport.Options{
		Client:     app.client,
		Session:    app.Session,
		Refresher:  refresherFor(app.Coordinator),
		Terminator: app.Auth,
		Navigator:  app.navigator(),
		LoginPath:  apiCfg.LoginPath,
		Logger:     app.Logger.Tagged(platformlogging.TagHTTP),

		RefreshSkew: apiCfg.RefreshSkew,
		ExpiresAt:   credentialExpiry,
	})
	if err != nil {
		return err
	}
	app.Pipeline = pipeline
	app.Resources = resource.NewClient(pipeline)
	return nil
}

func initWalletStep(ctx context.Context, app *App) error {
	cfg := app.Config.Wallet
	logger := app.Logger.Tagged(platformlogging.TagWallet)

	var agent wallet.Agent
	rpcAgent, err := wallet.DialAgent(ctx, cfg.AgentURL, cfg.ChainID)
	switch {
	case err != nil:
		// an unreachable agent is the same as no agent; the connector reports it on use
		logger.Warn("signing agent unreachable: %v", err)
	case rpcAgent != nil:
		agent = rpcAgent
		app.onClose("signing agent", func(context.Context) error {
			rpcAgent.Close()
			return nil
		})
	}

	confirmer := app.opts.Confirmer
	if confirmer == nil {
		confirmer = wallet.PromptConfirmer{In: os.Stdin, Out: os.Stderr}
	}
	app.Wallet = wallet.NewConnector(wallet.Options{
		Agent:     agent,
		Confirmer: confirmer,
		Prompt:    cfg.ConfirmPrompt,
		Logger:    logger,
		Publisher: app.Bus,
	})
	return nil
}

// initLedgerStep leaves Ledger nil when no node is configured.
func initLedgerStep(ctx context.Context, app *App) error {
	cfg := app.Config.Ledger
	if cfg.RPCURL == "" {
		app.Logger.InfoTag(platformlogging.TagLedger, "no ledger node configured, minting disabled")
		return nil
	}
	backend, err := ledger.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	app.onClose("ledger node", func(context.Context) error {
		backend.Close()
		return nil
	})

	app.Ledger, err = ledger.NewClient(ledger.Options{
		Backend:       backend,
		NFTContract:   common.HexToAddress(cfg.NFTContract),
		TokenContract: common.HexToAddress(cfg.TokenContract),
		PollInterval:  cfg.PollInterval,
		FromBlock:     cfg.FromBlock,
		Logger:        app.Logger.Tagged(platformlogging.TagLedger),
	})
	return err
}

func initMintStoreStep(_ context.Context, app *App) error {
	cfg := app.Config.Mint.Store
	storeCfg := mintstore.Config{
		Driver: cfg.Type,
		TTL:    cfg.TTL,
	}
	switch cfg.Type {
	case mintstore.DriverRedis:
		storeCfg.Redis = &mintstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	case mintstore.DriverSQLite:
		storeCfg.SQLite = &mintstore.SQLiteConfig{DSN: cfg.SQLite.DSN}
	}

	store, err := mintstore.New(storeCfg, mintstore.Dependencies{SQLiteDB: app.DB})
	if err != nil {
		return err
	}
	app.Store = store
	app.onClose("mint store", store.Close)
	return nil
}

func initSagaStep(_ context.Context, app *App) error {
	if app.Ledger == nil {
		return nil
	}
	saga, err := mint.NewSaga(mint.Options{
		Store:     app.Store,
		Resources: app.Resources,
		Wallet:    app.Wallet,
		Ledger:    app.Ledger,
		Logger:    app.Logger.Tagged(platformlogging.TagMint),
		Publisher: app.Bus,
	})
	if err != nil {
		return err
	}
	app.Saga = saga
	return nil
}

func (a *App) navigator() *httptransport.RouteNavigator {
	if a.Navigator == nil {
		logger := a.Logger.Tagged(platformlogging.TagHTTP)
		a.Navigator = httptransport.NewRouteNavigator("/", func(path string) {
			logger.Info("navigated to %s", path)
		})
	}
	return a.Navigator
}

func refresherFor(c *auth.Coordinator) httptransport.RefreshFunc {
	return func(ctx context.Context) (string, error) {
		outcome, err := c.Refresh(ctx)
		if err != nil {
			return "", err
		}
		return outcome.Credential, nil
	}
}

func credentialExpiry(credential string) (time.Time, bool) {
	claims, err := auth.InspectCredential(credential)
	if err != nil || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

func displayPath(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
