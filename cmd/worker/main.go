package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/contentpipe/checkout"
	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/gateway"
	"github.com/hrygo/contentpipe/handler"
	"github.com/hrygo/contentpipe/internal/healthsrv"
	"github.com/hrygo/contentpipe/internal/metrics"
	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/internal/version"
	"github.com/hrygo/contentpipe/queue"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/store/db"
	"github.com/hrygo/contentpipe/watchdog"
	"github.com/hrygo/contentpipe/worker"
)

var rootCmd = &cobra.Command{
	Use:   "contentpipe-worker",
	Short: "Worker fabric for the content ingestion pipeline: task workers, the watchdog, and queue admin commands.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func newProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Driver: viper.GetString("driver"),
		DSN:    viper.GetString("dsn"),
		Mode:   viper.GetString("mode"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if p.IsDev() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return p, nil
}

// openStore connects and migrates the configured driver.
func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDriver(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open database driver: %w", err)
	}
	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

// buildGateways wires the outbound HTTP/LLM/Chat gateways from profile
// settings. Telegram is only constructed when a bot token is configured;
// callers that never dispatch dig_deeper/sync_integration tasks can run
// without it, since those are the only handlers touching ChatGateway.
func buildGateways(p *profile.Profile) (gateway.HTTPGateway, gateway.LLMGateway, gateway.ChatGateway, error) {
	httpGW := gateway.NewHTTPGateway(time.Duration(p.HTTPTimeoutSeconds)*time.Second, p.HTTPRateLimitPerSec, p.HTTPRateLimitBurst)
	llmGW := gateway.NewOpenAIGateway(p.LLMAPIKey, p.LLMBaseURL, p.LLMModel, time.Duration(p.LLMTimeoutSeconds)*time.Second)

	var chatGW gateway.ChatGateway
	if p.TelegramBotToken != "" {
		var err error
		chatGW, err = gateway.NewTelegramGateway(p.TelegramBotToken)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to construct telegram gateway: %w", err)
		}
	}
	return httpGW, llmGW, chatGW, nil
}

func withShutdownContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, terminationSignals...)
	go func() {
		<-c
		slog.Info("received shutdown signal, stopping gracefully")
		cancel()
	}()
	return ctx, cancel
}

func runHealthServer(ctx context.Context, p *profile.Profile, s *store.Store, m *metrics.Exporter) {
	if p.HealthAddr == "" {
		return
	}
	health := healthsrv.New(p.HealthAddr, s, m)
	go func() {
		if err := health.Start(ctx); err != nil {
			slog.Error("health server exited with error", slog.Any("error", err))
		}
	}()
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the sequential task worker loop for one queue partition.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProfile()
		if err != nil {
			return err
		}
		queueName, _ := cmd.Flags().GetString("queue")
		if queueName == "all" {
			queueName = ""
		}
		maxTasks, _ := cmd.Flags().GetInt("max-tasks")

		ctx, cancel := withShutdownContext()
		defer cancel()

		s, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer s.Close()

		httpGW, llmGW, chatGW, err := buildGateways(p)
		if err != nil {
			return err
		}

		q := queue.New(s)
		m := metrics.New()
		runHealthServer(ctx, p, s, m)

		d := dispatcher.New()
		handler.Register(d)

		tctx := &dispatcher.Context{
			Store:    s,
			Queue:    q,
			Checkout: checkout.New(s, p.CheckoutTimeoutMinutes),
			Profile:  p,
			HTTP:     httpGW,
			LLM:      llmGW,
			Chat:     chatGW,
			WorkerID: p.WorkerID,
		}

		loop := worker.New(q, d, tctx, queueName, p)
		return loop.Run(ctx, maxTasks)
	},
}

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Run the periodic stale-task reclamation and misroute-correction pass.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProfile()
		if err != nil {
			return err
		}
		loopMode, _ := cmd.Flags().GetBool("loop")
		intervalSeconds, _ := cmd.Flags().GetInt("interval-seconds")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx, cancel := withShutdownContext()
		defer cancel()

		s, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer s.Close()

		wd := watchdog.New(s, checkout.New(s, p.CheckoutTimeoutMinutes), p, dryRun)

		if !loopMode {
			_, err := wd.RunOnce(ctx)
			return err
		}
		return wd.Loop(ctx, time.Duration(intervalSeconds)*time.Second)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue administration commands.",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print pending/processing/completed/failed counts per queue partition.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProfile()
		if err != nil {
			return err
		}
		ctx := context.Background()
		s, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := queue.New(s).Stats(ctx, 10)
		if err != nil {
			return err
		}
		for queueName, byStatus := range stats.ByQueueAndStatus {
			for status, count := range byStatus {
				fmt.Printf("%-12s %-12s %d\n", queueName, status, count)
			}
		}
		fmt.Printf("\nrecent failures: %d\n", len(stats.RecentFailures))
		for _, t := range stats.RecentFailures {
			fmt.Printf("  task %d (%s): %s\n", t.ID, t.TaskType, t.ErrorMessage)
		}
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete completed tasks older than the configured cleanup window.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProfile()
		if err != nil {
			return err
		}
		ctx := context.Background()
		s, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := queue.New(s).Cleanup(ctx, time.Duration(p.CleanupDays)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d old tasks\n", n)
		return nil
	},
}

var queueRequeueStaleCmd = &cobra.Command{
	Use:   "requeue-stale",
	Short: "Requeue processing tasks stuck past the stale threshold, without running a full watchdog pass.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProfile()
		if err != nil {
			return err
		}
		ctx := context.Background()
		s, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer s.Close()

		ids, err := s.RequeueStaleProcessing(ctx, time.Duration(p.WatchdogStaleHoursProcessContent)*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d stale tasks\n", len(ids))
		return nil
	},
}

var queueMoveTranscribeCmd = &cobra.Command{
	Use:   "move-transcribe",
	Short: "Move mis-queued transcribe tasks back onto the transcribe queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProfile()
		if err != nil {
			return err
		}
		ctx := context.Background()
		s, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.MoveMisroutedTranscribeTasks(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("moved %d tasks back to the transcribe queue\n", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `process mode, "dev", "demo" or "prod"; selects the log format (JSON in prod, text otherwise) and the default sqlite file name`)
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver (postgres or sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.SetEnvPrefix("contentpipe")
	viper.AutomaticEnv()

	workerCmd.Flags().String("queue", "all", "queue partition to serve: content, transcribe, onboarding, chat, or all")
	workerCmd.Flags().Int("max-tasks", 0, "stop after processing this many tasks (0 = unlimited)")

	watchdogCmd.Flags().Bool("loop", false, "run continuously instead of a single pass")
	watchdogCmd.Flags().Int("interval-seconds", 300, "seconds between passes in --loop mode")
	watchdogCmd.Flags().Bool("dry-run", false, "skip every action and record no run; the pass does not report what it would have changed")

	queueCmd.AddCommand(queueStatusCmd, queueClearCmd, queueRequeueStaleCmd, queueMoveTranscribeCmd)
	rootCmd.AddCommand(workerCmd, watchdogCmd, queueCmd)
}

func main() {
	slog.Info("contentpipe worker starting", slog.String("version", version.String()))
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
