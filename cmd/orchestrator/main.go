// Command orchestrator runs the message routing and escalation engine as an
// HTTP daemon. See the secrets subcommand for managing the encrypted API key
// file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aveelabs/orchestrator/internal/api"
	"github.com/aveelabs/orchestrator/pkg/answer"
	"github.com/aveelabs/orchestrator/pkg/canonical"
	"github.com/aveelabs/orchestrator/pkg/config"
	"github.com/aveelabs/orchestrator/pkg/decisionlog"
	"github.com/aveelabs/orchestrator/pkg/engine"
	"github.com/aveelabs/orchestrator/pkg/escalation"
	"github.com/aveelabs/orchestrator/pkg/logx"
	"github.com/aveelabs/orchestrator/pkg/metrics"
	"github.com/aveelabs/orchestrator/pkg/notify"
	"github.com/aveelabs/orchestrator/pkg/persistence"
	"github.com/aveelabs/orchestrator/pkg/scoring"
	"github.com/aveelabs/orchestrator/pkg/version"
)

func main() {
	// The secrets subcommand has its own flag set.
	if len(os.Args) > 1 && os.Args[1] == "secrets" {
		os.Exit(runSecrets(os.Args[2:]))
	}

	var (
		configPath  = flag.String("config", "orchestrator.yaml", "Path to YAML config file")
		secretsPath = flag.String("secrets", "", "Path to encrypted secrets file (optional)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("orchestrator %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	os.Exit(run(*configPath, *secretsPath))
}

// run contains the daemon logic and returns an exit code, so defers execute
// before os.Exit.
func run(configPath, secretsPath string) int {
	logger := logx.NewLogger("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if secretsPath != "" {
		password := os.Getenv("ORCHESTRATOR_SECRETS_PASSWORD")
		if password == "" {
			fmt.Fprintln(os.Stderr, "ORCHESTRATOR_SECRETS_PASSWORD is required to decrypt the secrets file")
			return 1
		}
		if err := config.LoadSecretsFile(secretsPath, password); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load secrets: %v\n", err)
			return 1
		}
		logger.Info("loaded secrets from %s", secretsPath)
	}

	db, err := persistence.InitializeDatabase(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		return 1
	}
	defer db.Close()
	ops := persistence.NewDatabaseOperations(db)

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure scoring: %v\n", err)
		return 1
	}
	scorer, err := scoring.NewScorer(embedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create scorer: %v\n", err)
		return 1
	}

	responder, err := buildResponder(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure answer provider: %v\n", err)
		return 1
	}

	recorder := metrics.NewPrometheusRecorder()
	var activity *metrics.QueryService
	if cfg.Metrics.PrometheusURL != "" {
		activity, err = metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to configure activity queries: %v\n", err)
			return 1
		}
		logger.Info("owner activity queries enabled against %s", cfg.Metrics.PrometheusURL)
	}
	store := canonical.NewStore(ops, embedder)
	notifier := notify.NewNotifier(notify.NewLogSink(), 256)
	defer notifier.Close()
	manager := escalation.NewManager(ops, store, notifier, recorder)

	var audit *decisionlog.AuditWriter
	if cfg.Audit.Enabled {
		audit, err = decisionlog.NewAuditWriter(cfg.Audit.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open audit trail: %v\n", err)
			return 1
		}
	}
	decisions := decisionlog.NewLog(ops, recorder, audit)
	defer decisions.Close()

	eng := engine.New(cfg, ops, scorer, store, manager, decisions, responder, recorder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runExpirySweep(ctx, eng, cfg.SweepInterval(), logger)

	logger.Info("orchestrator %s starting (scoring=%s, answers=%s)",
		version.Version, cfg.Scoring.Provider, cfg.Answer.Provider)
	server := api.NewServer(eng, activity)
	if err := server.Start(ctx, cfg.Server.ListenAddr, cfg.ShutdownTimeout()); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// buildEmbedder wires the configured embedding backend.
func buildEmbedder(cfg *config.Config) (scoring.Embedder, error) {
	switch cfg.Scoring.Provider {
	case config.ScoringProviderOpenAI:
		key, err := config.GetSecret(config.SecretOpenAIKey)
		if err != nil {
			return nil, err
		}
		return scoring.NewOpenAIEmbedder(key, cfg.Scoring.Model), nil
	case config.ScoringProviderOllama:
		return scoring.NewOllamaEmbedder(cfg.Scoring.OllamaHost, cfg.Scoring.Model), nil
	default:
		return nil, fmt.Errorf("unknown scoring provider %q", cfg.Scoring.Provider)
	}
}

// buildResponder wires the configured answer provider.
func buildResponder(cfg *config.Config) (answer.Responder, error) {
	switch cfg.Answer.Provider {
	case config.AnswerProviderAnthropic:
		key, err := config.GetSecret(config.SecretAnthropicKey)
		if err != nil {
			return nil, err
		}
		return answer.NewAnthropicResponder(key, cfg.Answer.Model), nil
	case config.AnswerProviderGoogle:
		key, err := config.GetSecret(config.SecretGoogleKey)
		if err != nil {
			return nil, err
		}
		return answer.NewGoogleResponder(key, cfg.Answer.Model), nil
	case config.AnswerProviderTemplate:
		return answer.NewTemplateResponder(), nil
	default:
		return nil, fmt.Errorf("unknown answer provider %q", cfg.Answer.Provider)
	}
}

// runExpirySweep expires stale pending escalations on a ticker until ctx is
// cancelled.
func runExpirySweep(ctx context.Context, eng *engine.Engine, interval time.Duration, logger *logx.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.ExpireStale(); err != nil {
				logger.Error("expiry sweep failed: %v", err)
			}
		}
	}
}
