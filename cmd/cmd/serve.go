package cmd

import (
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeremyandrews/argus/internal/clustering"
	"github.com/jeremyandrews/argus/internal/config"
	"github.com/jeremyandrews/argus/internal/embedder"
	"github.com/jeremyandrews/argus/internal/entity"
	"github.com/jeremyandrews/argus/internal/llm"
	"github.com/jeremyandrews/argus/internal/logger"
	"github.com/jeremyandrews/argus/internal/orchestrator"
	"github.com/jeremyandrews/argus/internal/relevance"
	"github.com/jeremyandrews/argus/internal/store"
	"github.com/jeremyandrews/argus/internal/vectorstore"
)

// embedderConcurrency bounds simultaneous ONNX embedding calls; the model
// runs CPU-bound so this is sized to cores, not network concurrency (spec
// §5: "embedding runs on a blocking executor separate from network I/O").
const embedderConcurrency = 4

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis and clustering worker pools",
		Long: `serve loads configuration, opens the relational and vector stores, and
starts one decision worker per configured decision endpoint and one analysis
worker per configured analysis endpoint. It blocks until interrupted, then
drains in-flight work before exiting (spec §5).`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	host, port, err := splitHostPort(cfg.Vector.URL)
	if err != nil {
		return fmt.Errorf("parse vector store url: %w", err)
	}
	vector, err := vectorstore.NewQdrantStore(host, port, "argus_articles", "")
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := vector.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}

	emb, err := embedder.New(embedderConcurrency)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	gateway := llm.New()
	decisionPool := llm.NewPool(gateway, cfg.Decision, llm.BackendOllama, cfg.OpenAI.APIKey)
	analysisPool := llm.NewPool(gateway, cfg.Analysis, llm.BackendOllama, cfg.OpenAI.APIKey)
	if decisionPool.Len() == 0 || analysisPool.Len() == 0 {
		return fmt.Errorf("serve requires at least one decision and one analysis worker endpoint configured")
	}

	orc := orchestrator.New(orchestrator.Deps{
		Store:          db,
		Vector:         vector,
		Embedder:       emb,
		Matcher:        entity.NewMatcher(db),
		Clustering:     clustering.New(db, vector),
		TopicGate:      relevance.NewTopicGate(),
		DecisionPool:   decisionPool,
		AnalysisPool:   analysisPool,
		RequestTimeout: cfg.Timeouts.Request,
		EmbedTimeout:   cfg.Timeouts.Embedder,
	})

	logger.Info("starting argus core",
		"decision_workers", decisionPool.Len(), "analysis_workers", analysisPool.Len())
	orc.Run(ctx)
	logger.Info("argus core stopped")
	return nil
}

func splitHostPort(url string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
