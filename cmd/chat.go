package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samsaffron/conductor/internal/approval"
	"github.com/samsaffron/conductor/internal/config"
	"github.com/samsaffron/conductor/internal/engine"
	"github.com/samsaffron/conductor/internal/input"
	"github.com/samsaffron/conductor/internal/llm"
	"github.com/samsaffron/conductor/internal/metrics"
	"github.com/samsaffron/conductor/internal/prompt"
	"github.com/samsaffron/conductor/internal/signal"
	"github.com/samsaffron/conductor/internal/tools"
	"github.com/spf13/cobra"
)

var (
	chatProvider    string
	chatYes         bool
	chatMaxTurns    int
	chatMetricsAddr string
	chatFiles       []string
)

var chatCmd = &cobra.Command{
	Use:   "chat [request]",
	Short: "Work through a request with tools",
	Long: `Send a request to the model and let it work through it with tools until
it calls task_complete, stops calling tools, or hits the iteration ceiling.

File writes are queued for review. In a terminal you are prompted for each
one; otherwise, or with --yes, they are applied as they arrive.

The request is read from stdin when no arguments are given. Files passed
with --file are attached to it; globs and line ranges are accepted.

Examples:
  conductor chat "rename Foo to Bar across the package"
  conductor chat -f main.go:40-80 -f 'internal/**/*.go' "explain the retry path"
  conductor chat -p ollama:qwen3-coder "add tests for parser.go"
  echo "fix the lint errors" | conductor chat --yes`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	AddProviderFlag(chatCmd, &chatProvider)
	chatCmd.Flags().BoolVarP(&chatYes, "yes", "y", false, "Apply file writes without review")
	chatCmd.Flags().IntVar(&chatMaxTurns, "max-turns", 0, "Override the per-session iteration ceiling")
	chatCmd.Flags().StringArrayVarP(&chatFiles, "file", "f", nil, "Attach a file, glob or path:start-end range (repeatable)")
	chatCmd.Flags().StringVar(&chatMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9090)")
}

func runChat(cmd *cobra.Command, args []string) error {
	request, err := input.ReadRequest(args, os.Stdin)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(chatProvider)
	if err != nil {
		return err
	}
	if chatMaxTurns > 0 {
		cfg.Loop.MaxIterations = chatMaxTurns
	}

	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if chatMetricsAddr != "" {
		srv := serveMetrics(chatMetricsAddr, reg)
		defer srv.Close()
	}

	provider, err := llm.NewProvider(cfg, llm.WithRetryHook(func(name string, attempt int, wait time.Duration, err error) {
		m.RecordRetry(name, string(llm.KindOf(err)))
		slog.Info("retrying model call", "provider", name, "attempt", attempt, "wait", wait, "error", err)
	}))
	if err != nil {
		return err
	}

	interactive := approval.Interactive()
	autoApprove := cfg.Approval.AutoApprove || chatYes || !interactive
	queue := approval.NewQueue(approval.WithAutoApprove(autoApprove))

	toolOpts := tools.OptionsFromConfig(cfg.Tools)
	attachments, err := input.ReadFiles(chatFiles, toolOpts.WorkDir)
	if err != nil {
		return err
	}
	registry, err := tools.NewDefaultRegistry(toolOpts, queue)
	if err != nil {
		return err
	}
	dispatcher := tools.NewDispatcher(registry, queue,
		tools.WithPollInterval(cfg.Approval.PollInterval),
		tools.WithApprovalTimeout(cfg.Approval.Timeout),
		tools.WithMetrics(m),
	)

	eng := engine.New(provider, dispatcher, engineOptions(cfg, dispatcher.Names(), toolOpts.WorkDir, m))

	var termMu sync.Mutex
	renderer := newChunkRenderer(os.Stdout, &termMu, dispatcher.Preview)

	reviewCtx, stopReview := context.WithCancel(ctx)
	defer stopReview()
	if !autoApprove {
		reviewer := approval.NewReviewer(queue, os.Stdout, nil, &termMu)
		go func() {
			if err := reviewer.Run(reviewCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("approval review failed", "error", err)
			}
		}()
	}

	slog.Debug("starting request", "provider", provider.Name(), "tools", len(dispatcher.Names()), "auto_approve", autoApprove)
	handle := eng.Start(ctx, input.WithAttachments(prompt.UserPrompt(request), attachments), renderer.Render)
	result, runErr := handle.Wait()

	printSummary(os.Stderr, result)
	if runErr != nil {
		// The error chunk has already been rendered.
		return fmt.Errorf("request failed: %s", llm.KindOf(runErr))
	}
	return nil
}

func engineOptions(cfg *config.Config, toolNames []string, workDir string, m *metrics.Metrics) engine.Options {
	continuations := cfg.Loop.MaxContinuations
	if continuations == 0 {
		// max_continuations: 0 in the config turns continuation off.
		continuations = -1
	}
	return engine.Options{
		Model:            cfg.Providers[cfg.Provider].Model,
		System:           prompt.SystemPrompt(workDir, toolNames, cfg.Loop.Instructions),
		MaxOutputTokens:  cfg.Loop.MaxOutputTokens,
		Temperature:      cfg.Loop.Temperature,
		MaxIterations:    cfg.Loop.MaxIterations,
		MaxContinuations: continuations,
		Metrics:          m,
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}

func printSummary(w io.Writer, res engine.Result) {
	tasks := len(res.Snapshot.Tasks)
	line := fmt.Sprintf("%s after %d iterations", res.Reason, res.Iterations)
	if res.Continuations > 0 {
		line += fmt.Sprintf(", %d continuations", res.Continuations)
	}
	if tasks > 0 {
		line += fmt.Sprintf(", %d of %d tasks done", res.Snapshot.CompletedTasks(), tasks)
	}
	fmt.Fprintln(w, mutedStyle.Render(line))
}
