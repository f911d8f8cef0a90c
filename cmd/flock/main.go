// Command flock runs the AI community: an HTTP API plus a scheduler
// that lets every human account's bound agent observe, feel, and post.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"flock/internal/config"
	"flock/internal/critic"
	"flock/internal/daemon"
	"flock/internal/diversity"
	"flock/internal/learner"
	"flock/internal/llm"
	"flock/internal/logging"
	"flock/internal/pipeline"
	"flock/internal/quota"
	"flock/internal/rumination"
	"flock/internal/scheduler"
	"flock/internal/seed"
	"flock/internal/server"
	"flock/internal/service"
	"flock/internal/store"
	"flock/internal/tui"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "flock",
	Short: "flock - a one-user-one-AI community simulator",
	Long: `flock runs a small social community where every registered human
gets exactly one bound AI account. A scheduler ticks the population:
agents observe the timeline, update a six-dimension emotion vector,
roll desire against daily quotas, draft candidates, and publish only
what survives the critic.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.DataDir, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if cfg.Logging.Debug {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// app is the fully wired application graph.
type app struct {
	store     *store.Store
	service   *service.Service
	scheduler *scheduler.Scheduler
}

func (a *app) close() {
	_ = a.store.Close()
}

func buildApp() (*app, error) {
	st, err := store.New(cfg.DatabasePath(), cfg.Location(), cfg.VirtualDaySeconds)
	if err != nil {
		return nil, err
	}

	q := quota.New(st, cfg.HumanDailyLimit, cfg.AgentPostDailyLimit, cfg.AgentCommentDailyLimit)
	factory := llm.NewFactory(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLMTimeout())
	p := pipeline.New(
		critic.New(criticInvoker(factory, cfg), cfg.CriticStrictness),
		diversity.New(cfg.DiversityWindow, cfg.DiversityFloor, cfg.DiversityWeight),
		cfg.CandidateDrafts, cfg.PostThreshold, cfg.CommentThreshold,
	)
	sched := scheduler.New(cfg, st, q, p,
		learner.New(st),
		rumination.New(st, cfg.Rumination.Enabled),
		factory,
	)
	svc := service.New(cfg, st, q, sched)
	return &app{store: st, service: svc, scheduler: sched}, nil
}

// criticInvoker adapts the configured default backend into the
// critic's model-assisted path. Resolution is lazy and cached by the
// factory, so a missing backend degrades the critic to rule-only
// scoring instead of failing startup.
func criticInvoker(factory *llm.Factory, cfg *config.Config) critic.InvokeFunc {
	return func(prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout())
		defer cancel()
		client, err := factory.Resolve(ctx, cfg.LLM.Provider, cfg.LLM.Model)
		if err != nil {
			return "", err
		}
		return client.Generate(ctx, llm.Request{
			UserPrompt:  prompt,
			Temperature: 0.2,
			MaxTokens:   200,
		})
	}
}

// bootstrap brings a fresh database up to the configured population
// and seeds the first timeline entries.
func (a *app) bootstrap() error {
	if _, err := a.service.BootstrapPopulation(cfg.Population); err != nil {
		return err
	}
	return a.service.SeedInitialTimeline()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// tickLoop runs scheduler passes until ctx is canceled.
func tickLoop(ctx context.Context, a *app) error {
	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := a.scheduler.RunTick(ctx, 0)
			if err != nil {
				logging.SchedulerError("tick failed: %v", err)
				continue
			}
			logging.Scheduler("tick %s: %d processed, %d posted, %d commented, status=%s",
				result.TickID, result.Processed, result.Posted, result.Commented, result.Status)
		}
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background tick loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.bootstrap(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		srv := server.New(cfg.ServerAddr, a.service, logger)
		logger.Info("serving", zap.String("addr", cfg.ServerAddr),
			zap.Duration("tick_interval", cfg.TickInterval()))

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(ctx) })
		g.Go(func() error { return tickLoop(ctx, a) })
		return g.Wait()
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler pass and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAgents, _ := cmd.Flags().GetInt("max-agents")

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.bootstrap(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.scheduler.RunTick(ctx, maxAgents)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		return tui.Run(a.service)
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print community health metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		metrics, err := a.service.CommunityMetrics()
		if err != nil {
			return err
		}
		return printJSON(metrics)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import recent Hacker News stories and comments as human content",
	RunE: func(cmd *cobra.Command, args []string) error {
		stories, _ := cmd.Flags().GetInt("stories")
		comments, _ := cmd.Flags().GetInt("comments")
		maxChars, _ := cmd.Flags().GetInt("max-chars")
		throttleMs, _ := cmd.Flags().GetInt("throttle-ms")
		topic, _ := cmd.Flags().GetString("topic")

		var topicPattern *regexp.Regexp
		if topic != "" {
			var err error
			if topicPattern, err = regexp.Compile("(?i)" + topic); err != nil {
				return fmt.Errorf("invalid topic pattern: %w", err)
			}
		}

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := signalContext()
		defer cancel()

		stats, err := seed.New(a.store).Run(ctx, seed.Options{
			Stories:  stories,
			Comments: comments,
			MaxChars: maxChars,
			Throttle: time.Duration(throttleMs) * time.Millisecond,
			Topic:    topicPattern,
		})
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the detached background tick process",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tick loop as a detached process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl := daemon.New(cfg.DataDir)
		pid, err := ctl.Start("--config", configPath)
		if err != nil {
			return err
		}
		fmt.Printf("daemon started (pid %d), log: %s\n", pid, ctl.LogPath())
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the detached tick process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl := daemon.New(cfg.DataDir)
		pid, err := ctl.Stop()
		if err != nil {
			return err
		}
		fmt.Printf("daemon stopped (pid %d)\n", pid)
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the detached tick process is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl := daemon.New(cfg.DataDir)
		if pid, alive := ctl.Running(); alive {
			fmt.Printf("daemon running (pid %d)\n", pid)
		} else if pid != 0 {
			fmt.Printf("daemon not running (stale pidfile for %d)\n", pid)
		} else {
			fmt.Println("daemon not running")
		}
		return nil
	},
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tick loop in the foreground (used by daemon start)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl := daemon.New(cfg.DataDir)
		if err := ctl.WritePID(os.Getpid()); err != nil {
			return err
		}
		defer ctl.RemovePID()

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.bootstrap(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		fmt.Printf("tick loop up (pid %d, interval %s)\n", os.Getpid(), cfg.TickInterval())
		return tickLoop(ctx, a)
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "flock.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	tickCmd.Flags().Int("max-agents", 0, "cap agents processed this tick (0 = config default)")

	seedCmd.Flags().Int("stories", 30, "HN stories to import")
	seedCmd.Flags().Int("comments", 30, "HN comments to import")
	seedCmd.Flags().Int("max-chars", 500, "body length cap after cleaning")
	seedCmd.Flags().Int("throttle-ms", 0, "pause between story inserts")
	seedCmd.Flags().String("topic", "", "only import items matching this pattern")

	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonRunCmd)
	rootCmd.AddCommand(serveCmd, tickCmd, tuiCmd, metricsCmd, seedCmd, daemonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
