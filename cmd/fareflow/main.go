package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fareflow/capture"
	"fareflow/db"
	"fareflow/gateway"
	"fareflow/migrations"
	"fareflow/payment"
	"fareflow/retention"
	"fareflow/ride"
	"fareflow/runner"
)

var rootCmd = &cobra.Command{
	Use:   "fareflow",
	Short: "Retention and payment-capture background jobs for the ride backend",
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FAREFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().Duration("retention-window", retention.DefaultWindow, "conversation retention window")
	rootCmd.PersistentFlags().Int("batch-size", 50, "capture tasks per drain pass")
	rootCmd.PersistentFlags().String("gateway-url", "", "payment gateway base URL")
	_ = viper.BindPFlag("database-url", rootCmd.PersistentFlags().Lookup("database-url"))
	_ = viper.BindPFlag("retention-window", rootCmd.PersistentFlags().Lookup("retention-window"))
	_ = viper.BindPFlag("batch-size", rootCmd.PersistentFlags().Lookup("batch-size"))
	_ = viper.BindPFlag("gateway-url", rootCmd.PersistentFlags().Lookup("gateway-url"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd, sweepCmd, drainCmd, requeueCmd, stuckCmd, completeCmd, migrateCmd)

	serveCmd.Flags().String("sweep-schedule", "0 3 * * *", "cron schedule for the retention sweep")
	serveCmd.Flags().String("drain-schedule", "*/5 * * * *", "cron schedule for the capture drain")
	_ = viper.BindPFlag("sweep-schedule", serveCmd.Flags().Lookup("sweep-schedule"))
	_ = viper.BindPFlag("drain-schedule", serveCmd.Flags().Lookup("drain-schedule"))
}

func newPool(ctx context.Context) (*pgxpool.Pool, error) {
	connString := viper.GetString("database-url")
	if connString == "" {
		connString = os.Getenv("DATABASE_URL")
	}
	return db.NewPool(ctx, connString)
}

func newWorker(pool *pgxpool.Pool) *capture.Worker {
	gw := gateway.NewClient(viper.GetString("gateway-url"), nil)
	return capture.NewWorker(pool, capture.NewRepository(pool), payment.NewRepository(), gw)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled sweeper and capture drain until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		sweeper := retention.NewSweeper(pool, viper.GetDuration("retention-window"))
		worker := newWorker(pool)

		r := runner.New(runner.NewPGRunRecorder(pool), logger, 0)
		if err := r.Schedule(viper.GetString("sweep-schedule"), runner.SweepJob{Sweeper: sweeper}); err != nil {
			return err
		}
		if err := r.Schedule(viper.GetString("drain-schedule"), runner.DrainJob{Worker: worker, BatchSize: viper.GetInt("batch-size")}); err != nil {
			return err
		}

		r.Start()
		logger.Info("fareflow runner started")
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return r.Stop(stopCtx)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		sweeper := retention.NewSweeper(pool, viper.GetDuration("retention-window"))
		deleted, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("deleted %d conversations\n", deleted)
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run one capture drain pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		result, err := newWorker(pool).ProcessPending(ctx, viper.GetInt("batch-size"))
		if err != nil {
			return err
		}

		fmt.Printf("completed %d, failed %d\n", result.Completed, result.Failed)
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <task-id>",
	Short: "Move a failed capture task back to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := capture.NewRepository(pool).Requeue(ctx, args[0]); err != nil {
			return err
		}

		fmt.Printf("task %s requeued\n", args[0])
		return nil
	},
}

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List capture tasks stuck in processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		tasks, err := capture.NewRepository(pool).ListStuck(ctx, time.Hour)
		if err != nil {
			return err
		}

		for _, t := range tasks {
			claimedAt := t.UpdatedAt.Format(time.RFC3339)
			fmt.Printf("%s\tintent=%s\tamount=%d\tclaimed=%s\tattempts=%d\n",
				t.ID, t.PaymentIntentID, t.Amount, claimedAt, t.Attempts)
		}
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <ride-id>",
	Short: "Mark a ride completed and stage its captures",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		worker := newWorker(pool)
		svc := ride.NewService(pool, nil)
		svc.Detector().Register(ride.CompletionHookFunc(func(ctx context.Context, rideID string) error {
			staged, err := worker.OnRideCompleted(ctx, rideID)
			if err != nil {
				return err
			}
			fmt.Printf("staged %d capture tasks\n", staged)
			return nil
		}))

		return svc.UpdateStatus(ctx, args[0], ride.StatusCompleted)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		return db.Migrate(ctx, pool, migrations.FS, logger)
	},
}
