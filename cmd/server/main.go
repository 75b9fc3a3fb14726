package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/vyuha/orbit/internal/ai"
	"github.com/vyuha/orbit/internal/api"
	"github.com/vyuha/orbit/internal/graph"
	"github.com/vyuha/orbit/internal/search"
	"github.com/vyuha/orbit/internal/session"
	"github.com/vyuha/orbit/internal/storage"
)

// initLogger configures the global slog default with JSON output.
func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(h))
}

// envOrDefault resolves a configuration value with the priority:
// flag (if explicitly set, i.e. differs from defaultVal) > env var > default.
func envOrDefault(envKey, flagVal, defaultVal string) string {
	if flagVal != defaultVal {
		return flagVal
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultVal
}

// config is the resolved server configuration.
type config struct {
	DBPath   string
	Port     int
	LogLevel string

	AIProvider string
	AIRegion   string
	AIModel    string
	OllamaURL  string
	AIContext  int
	AIWorkers  int

	ExaAPIKey     string
	ExaURL        string
	NumResults    int
	SearchTTL     time.Duration
	SearchOnDrill bool

	StalePolicy session.StalePolicy
}

// parseConfig reads flags from args and fills the gaps from ORBIT_*
// environment variables. EXA_API_KEY is read without a prefix so the key
// can be shared with other tools.
func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("orbit", flag.ContinueOnError)
	dbPathFlag := fs.String("db-path", "./orbit.db", "Path to SQLite cache database")
	portFlag := fs.Int("port", 8080, "HTTP server port")
	logLevel := fs.String("log-level", "info", "Log level (debug|info|warn|error)")
	aiProviderFlag := fs.String("ai-provider", "", "AI provider: bedrock or ollama (empty = disabled)")
	aiRegionFlag := fs.String("ai-region", "us-east-1", "AWS region for Bedrock provider")
	aiModelFlag := fs.String("ai-model", "", "LLM model ID (provider-specific)")
	ollamaURLFlag := fs.String("ollama-url", "http://localhost:11434", "Ollama API URL")
	aiContextFlag := fs.Int("ai-context", 0, "Ollama context window in tokens (0 = provider default)")
	aiWorkersFlag := fs.Int("ai-workers", 2, "Concurrent analysis jobs")
	exaURLFlag := fs.String("exa-url", "https://api.exa.ai", "Exa API base URL")
	numResultsFlag := fs.Int("num-results", search.DefaultNumResults, "Results per search")
	searchTTLFlag := fs.String("search-ttl", "24h", "How long cached searches stay fresh (0 = forever)")
	drillSearchFlag := fs.String("search-on-drill", "false", "Search for a node's label when drilling into it")
	staleFlag := fs.String("stale-policy", string(session.StaleDiscard), "Late responses: discard or merge")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg := config{
		DBPath:     envOrDefault("ORBIT_DB_PATH", *dbPathFlag, "./orbit.db"),
		LogLevel:   envOrDefault("ORBIT_LOG_LEVEL", *logLevel, "info"),
		AIProvider: envOrDefault("ORBIT_AI_PROVIDER", *aiProviderFlag, ""),
		AIRegion:   envOrDefault("ORBIT_AI_REGION", *aiRegionFlag, "us-east-1"),
		AIModel:    envOrDefault("ORBIT_AI_MODEL", *aiModelFlag, ""),
		OllamaURL:  envOrDefault("ORBIT_OLLAMA_URL", *ollamaURLFlag, "http://localhost:11434"),
		ExaAPIKey:  os.Getenv("EXA_API_KEY"),
		ExaURL:     envOrDefault("ORBIT_EXA_URL", *exaURLFlag, "https://api.exa.ai"),
	}

	var err error
	portStr := envOrDefault("ORBIT_PORT", strconv.Itoa(*portFlag), "8080")
	if cfg.Port, err = strconv.Atoi(portStr); err != nil {
		return config{}, fmt.Errorf("invalid port value %q: %w", portStr, err)
	}
	ctxStr := envOrDefault("ORBIT_AI_CONTEXT", strconv.Itoa(*aiContextFlag), "0")
	if cfg.AIContext, err = strconv.Atoi(ctxStr); err != nil {
		return config{}, fmt.Errorf("invalid ai-context value %q: %w", ctxStr, err)
	}
	workersStr := envOrDefault("ORBIT_AI_WORKERS", strconv.Itoa(*aiWorkersFlag), "2")
	if cfg.AIWorkers, err = strconv.Atoi(workersStr); err != nil {
		return config{}, fmt.Errorf("invalid ai-workers value %q: %w", workersStr, err)
	}
	defResults := strconv.Itoa(search.DefaultNumResults)
	resultsStr := envOrDefault("ORBIT_NUM_RESULTS", strconv.Itoa(*numResultsFlag), defResults)
	if cfg.NumResults, err = strconv.Atoi(resultsStr); err != nil {
		return config{}, fmt.Errorf("invalid num-results value %q: %w", resultsStr, err)
	}
	ttlStr := envOrDefault("ORBIT_SEARCH_TTL", *searchTTLFlag, "24h")
	if cfg.SearchTTL, err = time.ParseDuration(ttlStr); err != nil {
		return config{}, fmt.Errorf("invalid search-ttl value %q: %w", ttlStr, err)
	}
	drillStr := envOrDefault("ORBIT_SEARCH_ON_DRILL", *drillSearchFlag, "false")
	if cfg.SearchOnDrill, err = strconv.ParseBool(drillStr); err != nil {
		return config{}, fmt.Errorf("invalid search-on-drill value %q: %w", drillStr, err)
	}
	staleStr := envOrDefault("ORBIT_STALE_POLICY", *staleFlag, string(session.StaleDiscard))
	if cfg.StalePolicy, err = session.ParseStalePolicy(staleStr); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// purgeSearches drops expired search responses once an hour until ctx ends.
func purgeSearches(ctx context.Context, store *storage.Storage, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeSearchesBefore(ctx, time.Now().Add(-ttl))
			if err != nil {
				slog.Warn("search cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("search cache purged", "removed", n)
			}
		}
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	initLogger(cfg.LogLevel)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ---- Storage ---------------------------------------------------------
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to initialise storage: %v", err)
	}
	go purgeSearches(ctx, store, cfg.SearchTTL)

	// ---- SSE Broadcaster + session -----------------------------------------
	sse := api.NewSSEBroadcaster()

	sessCfg := session.DefaultConfig()
	sessCfg.StalePolicy = cfg.StalePolicy
	sess := session.New(sessCfg, api.NewSSELayout(sse))

	// ---- Search provider -------------------------------------------------
	var searcher search.Provider
	if cfg.ExaAPIKey != "" {
		exa := search.NewExaClient(search.ExaConfig{APIKey: cfg.ExaAPIKey, BaseURL: cfg.ExaURL})
		searcher = search.NewCached(exa, store, cfg.SearchTTL)
	} else {
		slog.Warn("EXA_API_KEY is not set, search disabled")
	}

	// ---- AI Provider (optional) ------------------------------------------
	var provider ai.Provider
	var jobQueue *ai.JobQueue

	if cfg.AIProvider != "" {
		kind, err := ai.ParseProviderKind(cfg.AIProvider)
		if err == nil {
			provider, err = ai.NewProvider(ctx, ai.ProviderConfig{
				Kind:          kind,
				Region:        cfg.AIRegion,
				Model:         cfg.AIModel,
				OllamaURL:     cfg.OllamaURL,
				ContextWindow: cfg.AIContext,
			})
		}
		if err != nil {
			slog.Warn("AI provider init failed, analysis disabled", "error", err)
			provider = nil
		} else {
			slog.Info("AI provider ready", "provider", provider.Name())
			jobQueue = ai.NewJobQueue(ai.NewAnalyzer(provider), store, api.NewAIBroadcaster(sse), cfg.AIWorkers)
		}
	}

	// ---- HTTP Server -----------------------------------------------------
	srv := api.NewServer(sess, sse, searcher, jobQueue)
	srv.SetStore(store)
	srv.SetNumResults(cfg.NumResults)
	if cfg.SearchOnDrill && searcher != nil {
		sess.OnDrill(func(center graph.Node, t session.Ticket) {
			go srv.SearchOnDrill(center, t)
		})
	}

	// ---- Startup banner --------------------------------------------------
	aiStatus := "disabled"
	if provider != nil {
		aiStatus = provider.Name()
	}
	searchStatus := "disabled"
	if searcher != nil {
		searchStatus = searcher.Name()
	}
	banner := fmt.Sprintf(`
===============================
 ORBIT: Knowledge Graph Explorer
 DB:     %s
 Port:   %d
 Search: %s
 AI:     %s
===============================`, cfg.DBPath, cfg.Port, searchStatus, aiStatus)
	fmt.Println(banner)

	slog.Info("orbit starting",
		"db_path", cfg.DBPath,
		"port", cfg.Port,
		"search", searchStatus,
		"ai_provider", aiStatus,
		"stale_policy", string(cfg.StalePolicy),
		"search_on_drill", cfg.SearchOnDrill,
	)

	srv.RegisterRoutes()

	addr := fmt.Sprintf(":%d", cfg.Port)

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// ---- Graceful shutdown -----------------------------------------------
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if jobQueue != nil {
		jobQueue.Close()
	}
	if provider != nil {
		provider.Close()
	}
	sess.Close()

	if err := store.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("orbit shutdown complete")
}
