package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"goflare.io/creamery/config"
	"goflare.io/creamery/driver"
	"goflare.io/creamery/models/enum"
)

var (
	verbose    bool
	configPath string
	envFile    string
	timeout    time.Duration
	seedFile   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "creamery",
	Short:         "Ice cream storefront backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		db, err := driver.ConnectSQL(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Pool.Close()

		if err = driver.Migrate(ctx, db.Pool); err != nil {
			return err
		}
		logger.Info("Schema applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample products",
	RunE: func(cmd *cobra.Command, args []string) error {
		products, err := loadSeedProducts(seedFile)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.catalog.Seed(ctx, products)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", len(ids))
		return nil
	},
}

var stockCmd = &cobra.Command{
	Use:   "stock <count>",
	Short: "Set the stock of every product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[0])
		if err != nil || count < 0 {
			return fmt.Errorf("invalid stock count %q", args[0])
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.catalog.BulkUpdateStocks(ctx, count)
	},
}

var orderStatusCmd = &cobra.Command{
	Use:   "order-status <order-id> <status>",
	Short: "Move an order to a new status",
	Long:  fmt.Sprintf("Move an order to a new status. Valid statuses: %q.", enum.OrderStatuses()),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.service.UpdateOrderStatus(ctx, args[0], enum.OrderStatus(args[1]))
	},
}

var removeProductCmd = &cobra.Command{
	Use:   "remove-product <product-id>",
	Short: "Delete a product and its uploaded image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.service.RemoveProduct(ctx, args[0])
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Mirror the catalog and process payment events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err = a.catalog.Load(ctx); err != nil {
			return err
		}
		if err = a.service.Start(ctx); err != nil {
			return err
		}

		logger.Info("Creamery is running", zap.Int("products", len(a.catalog.Products())))
		<-ctx.Done()
		logger.Info("Shutting down")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "creamery.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for one-shot commands")

	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML file of products (default: bundled sample products)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(stockCmd)
	rootCmd.AddCommand(orderStatusCmd)
	rootCmd.AddCommand(removeProductCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
