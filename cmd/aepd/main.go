// Command aepd is the Agent Execution Platform daemon: it loads
// Settings, wires the Registry, Dispatcher, Plugin Loader, Hot-Reload
// Watcher, Foreign-Runtime Bridge, Embedding Memory Engine, and
// Authentication Substrate together, and serves the task submission and
// health endpoints.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aep/aep"
	"github.com/aep/aep/auth"
	"github.com/aep/aep/health"
	"github.com/aep/aep/internal/bridge"
	"github.com/aep/aep/internal/plugin"
	"github.com/aep/aep/memory"
	"github.com/aep/aep/settings"

	_ "modernc.org/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := os.Getenv("AEP_CONFIG_FILE")
	cfg, err := settings.Load(cfgPath)
	if err != nil {
		var cfgErr *settings.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Error("configuration invalid", "violations", cfgErr.Violations)
		} else {
			logger.Error("failed to load configuration", "error", err)
		}
		return 1
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	})).With("component", "aepd")

	registry := aep.NewRegistry(aep.WithAllowBuiltinOverride(cfg.Plugins.AllowBuiltinOverride))
	if err := registry.Register("echo", &echoAgent{}); err != nil {
		logger.Error("failed to register builtin echo agent", "error", err)
		return 1
	}

	mem := memory.NewEngine(nil,
		memory.WithMaxFragments(cfg.Memory.MaxFragments),
		memory.WithEmbeddingDim(cfg.Memory.EmbeddingDimensions),
		memory.WithSimilarityThreshold(float32(cfg.Memory.SimilarityThreshold)),
		memory.WithEngineLogger(logger),
	)

	aggregator := health.NewAggregator()

	var instruments *health.Instruments
	if cfg.Observability.Enabled {
		inst, shutdown, err := health.Init(context.Background(),
			health.WithEndpointURL(cfg.Observability.OTLPEndpoint))
		if err != nil {
			logger.Warn("observability disabled: failed to initialize OTEL exporters", "error", err)
		} else {
			instruments = inst
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dispatcher := aep.NewDispatcher(registry,
		aep.WithMaxConcurrentTasks(cfg.Orchestrator.MaxConcurrentTasks),
		aep.WithTaskDeadline(time.Duration(cfg.Orchestrator.TaskDeadlineSecs)*time.Second),
		aep.WithDispatcherLogger(logger),
		aep.WithMemoryEngine(mem),
		aep.WithInstruments(instruments),
		aep.WithHealthAggregator(aggregator),
	)

	var authService *auth.Service
	if cfg.Security.EnableAuthentication {
		db, err := sql.Open("sqlite", "aepd-credentials.db")
		if err != nil {
			logger.Error("failed to open credential store", "error", err)
			return 1
		}
		defer db.Close()
		store := auth.NewSQLiteStore(db, auth.WithCredentialStoreLogger(logger))
		if err := store.Init(context.Background()); err != nil {
			logger.Error("failed to initialize credential store", "error", err)
			return 1
		}

		authService = auth.NewService(store, []byte(cfg.Security.JWTSecret), time.Hour,
			auth.WithMaxLoginAttempts(uint32(cfg.Security.MaxLoginAttempts)),
			auth.WithLockoutDuration(time.Duration(cfg.Security.LockoutDurationMins)*time.Minute))

		if _, err := store.LookupUser(context.Background(), "admin"); err != nil {
			logger.Error("authentication enabled but no admin record exists; create one before starting aepd")
			return 1
		}
	}

	if cfg.Bridge.Enabled {
		executor := bridge.NewSubprocessExecutor(cfg.Bridge.Command, cfg.Bridge.Args, time.Duration(cfg.Bridge.TimeoutSecs)*time.Second)
		br := bridge.New(cfg.Bridge.AllowedFunctions, executor,
			bridge.WithBridgeLogger(logger),
			bridge.WithInstruments(instruments),
			bridge.WithModules(cfg.Bridge.ScriptDirectory, cfg.Bridge.ScriptAllowlist),
		)
		bridgeCtx, cancelBridge := context.WithCancel(context.Background())
		defer cancelBridge()
		go br.Start(bridgeCtx)

		bridgeAgent := aep.NewBridgeAgent("bridge", cfg.Bridge.AllowedFunctions, br)
		if err := registry.Register("bridge", bridgeAgent); err != nil {
			logger.Error("failed to register bridge agent", "error", err)
			return 1
		}
	}

	policy := buildPluginPolicy(cfg)
	watcher := plugin.NewWatcher(policy, plugin.WithWatcherLogger(logger))
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go func() {
		if err := watcher.Run(watchCtx, cfg.Plugins.Directory); err != nil {
			logger.Warn("plugin watcher stopped", "error", err)
		}
	}()
	go drainWatcherEvents(watchCtx, watcher, registry, policy, instruments, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(w, aggregator, registry)
	})
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		handleSubmit(w, r, dispatcher)
	})
	if authService != nil {
		mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			handleLogin(w, r, authService)
		})
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("bind or serve failure", "error", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return 1
		}
	}
	return 0
}

func buildPluginPolicy(cfg settings.Settings) plugin.SecurityPolicy {
	allow := make(map[string]bool, len(cfg.Plugins.Allowlist))
	for _, h := range cfg.Plugins.Allowlist {
		allow[h] = true
	}
	return plugin.SecurityPolicy{
		AllowedExtensions: map[string]bool{".so": true, ".dll": true, ".dylib": true},
		AllowedHashes:     allow,
		RequireSignatures: cfg.Plugins.RequireSignatures,
		MaxSizeBytes:      cfg.Plugins.MaxSizeBytes,
	}
}

// drainWatcherEvents consumes hot-reload events and carries each validated
// EventReload through the full load -> instantiate -> registry.Replace
// pipeline, so a plugin file modified on disk actually takes effect in the
// running registry rather than only being logged.
func drainWatcherEvents(ctx context.Context, w *plugin.Watcher, registry *aep.Registry, policy plugin.SecurityPolicy, instruments *health.Instruments, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case plugin.EventReload:
				reloadPlugin(ctx, ev.Path, registry, policy, instruments, logger)
			case plugin.EventSecurityViolation:
				logger.Warn("plugin security violation", "path", ev.Path, "reason", ev.Reason)
				recordPluginOutcome(ctx, instruments, "security_violation")
			}
		}
	}
}

func reloadPlugin(ctx context.Context, path string, registry *aep.Registry, policy plugin.SecurityPolicy, instruments *health.Instruments, logger *slog.Logger) {
	lib, err := plugin.Load(path, policy)
	if err != nil {
		logger.Error("plugin load failed", "path", path, "error", err)
		recordPluginOutcome(ctx, instruments, "load_failed")
		return
	}

	agent, err := lib.Instantiate()
	if err != nil {
		logger.Error("plugin instantiation failed", "path", path, "error", err)
		recordPluginOutcome(ctx, instruments, "instantiate_failed")
		return
	}

	wrapped := aep.NewPluginAgent(lib, agent)
	if err := registry.Replace(wrapped.Name(), wrapped); err != nil {
		logger.Error("plugin reload refused", "path", path, "agent", wrapped.Name(), "error", err)
		recordPluginOutcome(ctx, instruments, "shadow_refused")
		return
	}

	logger.Info("plugin reloaded", "path", path, "agent", wrapped.Name(), "hash", wrapped.Hash())
	recordPluginOutcome(ctx, instruments, "reloaded")
}

func recordPluginOutcome(ctx context.Context, instruments *health.Instruments, outcome string) {
	if instruments == nil || instruments.PluginOutcomes == nil {
		return
	}
	instruments.PluginOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func handleHealth(w http.ResponseWriter, agg *health.Aggregator, registry *aep.Registry) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"agents": registry.List(),
		"health": agg.Snapshots(),
	})
}

type submitRequest struct {
	AgentName string          `json:"agent_name"`
	Input     json.RawMessage `json:"input"`
}

func handleSubmit(w http.ResponseWriter, r *http.Request, d *aep.Dispatcher) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	task := aep.NewTask(req.AgentName, req.Input)
	d.Submit(r.Context(), task)

	select {
	case reply := <-task.Reply:
		if reply.Err != nil {
			status := http.StatusUnprocessableEntity
			switch reply.Err.(type) {
			case *aep.ErrQueueFull:
				status = http.StatusServiceUnavailable
			case *aep.ErrUnknownAgent:
				status = http.StatusNotFound
			case *aep.ErrTimeout:
				status = http.StatusGatewayTimeout
			}
			http.Error(w, reply.Err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(reply.Result)
	case <-r.Context().Done():
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleLogin(w http.ResponseWriter, r *http.Request, svc *auth.Service) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	token, err := svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// echoAgent is the daemon's one built-in agent: it echoes its input back
// unchanged. Registered under "builtin" type, it exists so
// Registry.Replace's built-in-shadowing refusal has something real to
// refuse a hot-reloaded plugin against.
type echoAgent struct{}

func (echoAgent) Name() string           { return "echo" }
func (echoAgent) Type() string           { return "builtin" }
func (echoAgent) Capabilities() []string { return []string{"echo"} }

func (echoAgent) Handle(ctx context.Context, input json.RawMessage, mem *memory.Engine) (json.RawMessage, error) {
	return input, nil
}

func (echoAgent) Health() aep.AgentHealth {
	return aep.AgentHealth{Status: "ok"}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
