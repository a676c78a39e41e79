// Command research-powerpackd runs the research-orchestration MCP
// server over stdio. Modeled on the teacher's cmd/mcpdmcp/main.go: a
// cobra root command whose PersistentPreRunE builds the process zap
// logger, RunE wires every component and hands off to the supervisor.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/app/dispatch"
	"github.com/yigitkonur/research-powerpack-mcp/internal/app/handlers"
	"github.com/yigitkonur/research-powerpack-mcp/internal/app/supervisor"
	"github.com/yigitkonur/research-powerpack-mcp/internal/buildinfo"
	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/llm"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/reddit"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/scraper"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/search"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/mcpserver"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/metrics"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/toolconfig"
)

type rootOptions struct {
	configPath    string
	metricsAddr   string
	tokenBudget   int
	commentBudget int
	logger        *zap.Logger
}

func main() {
	opts := rootOptions{
		configPath:    "tools.yaml",
		tokenBudget:   32000,
		commentBudget: 1000,
		logger:        zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "research-powerpackd",
		Short: "Research-orchestration MCP server over stdio",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg := zap.NewProductionConfig()
			log, err := cfg.Build()
			if err != nil {
				return err
			}
			opts.logger = log
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	root.Flags().StringVar(&opts.configPath, "config", opts.configPath, "path to the declarative tool file (YAML)")
	root.Flags().StringVar(&opts.metricsAddr, "metrics-addr", opts.metricsAddr, "address to serve Prometheus metrics on (empty disables)")
	root.Flags().IntVar(&opts.tokenBudget, "token-budget", opts.tokenBudget, "total LLM token budget allocated per deep_research call")
	root.Flags().IntVar(&opts.commentBudget, "comment-budget", opts.commentBudget, "total Reddit comment budget allocated per fetch_reddit_threads call")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		RunE: func(*cobra.Command, []string) error {
			fmt.Printf("research-powerpackd %s (%s)\n", buildinfo.Version, buildinfo.Build)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		opts.logger.Fatal("command failed", zap.Error(err))
	}
}

func run(cmd *cobra.Command, opts rootOptions) error {
	logger := opts.logger

	specs, err := toolconfig.Load(opts.configPath, logger)
	if err != nil {
		return fmt.Errorf("load tool file: %w", err)
	}
	caps := toolconfig.Capabilities()
	env := toolconfig.LoadEnvironmentOverrides()

	procMetrics := metrics.New(nil)

	searchAdapter := search.New(os.Getenv("SEARCH_API_KEY"), "", logger).WithMetrics(procMetrics)
	redditAdapter := reddit.New(os.Getenv("REDDIT_CLIENT_ID"), os.Getenv("REDDIT_CLIENT_SECRET"), "research-powerpack-mcp/1.0", logger).WithMetrics(procMetrics)
	scraperAdapter := scraper.New(os.Getenv("SCRAPER_API_KEY"), "", logger).WithMetrics(procMetrics)
	researchAdapter := llm.New(os.Getenv("LLM_API_KEY"), env.OpenRouterBaseURL, env.ResearchModel, logger).WithMetrics(procMetrics)
	extractionAdapter := llm.New(os.Getenv("LLM_API_KEY"), env.OpenRouterBaseURL, env.LLMExtractionModel, logger).WithMetrics(procMetrics)

	handlerByName := map[string]domain.HandlerFunc{
		"web_search":           handlers.NewWebSearchHandler(searchAdapter, logger),
		"search_reddit":        handlers.NewSearchRedditHandler(searchAdapter, logger),
		"fetch_reddit_threads": handlers.NewFetchRedditThreadsHandler(redditAdapter, opts.commentBudget, logger, handlers.WithMetrics(procMetrics)),
		"scrape_urls":          handlers.NewScrapeURLsHandler(scraperAdapter, logger),
		"deep_research":        handlers.NewDeepResearchHandler(researchAdapter, opts.tokenBudget, logger, handlers.WithMetrics(procMetrics)),
		"llm_extraction":       handlers.NewLLMExtractionHandler(extractionAdapter, opts.tokenBudget, logger, handlers.WithMetrics(procMetrics)),
	}

	descriptors := make([]domain.ToolDescriptor, 0, len(specs))
	for _, spec := range specs {
		handler, ok := handlerByName[spec.Name]
		if !ok {
			return fmt.Errorf("tool %q declared in %s has no registered handler", spec.Name, opts.configPath)
		}
		descriptors = append(descriptors, domain.ToolDescriptor{
			Name:          spec.Name,
			Description:   spec.Description,
			Capability:    spec.Capability,
			Schema:        spec.Schema,
			Handler:       handler,
			ResponseShape: spec.ResponseShape,
		})
	}
	supervisor.MustNonEmpty(logger, "tool registry", len(descriptors))

	registry := dispatch.NewRegistry(descriptors, caps, logger).WithMetrics(procMetrics)

	ctx, cancel := supervisor.Context(cmd.Context(), logger)
	defer cancel()

	if opts.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.metricsAddr, logger); err != nil {
				logger.Error("metrics server stopped with error", zap.Error(err))
			}
		}()
	}

	server := mcpserver.New("research-powerpack-mcp", buildinfo.Version, registry, logger)

	var runErr error
	supervisor.RunFatal(logger, func() error {
		runErr = server.Run(ctx)
		return runErr
	})
	return runErr
}
