// Command wagerctl administers the wager bot's database: schema, token
// allow-list, house wallets and stored games.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wager-bot/internal/config"
	"wager-bot/internal/pkg/db"
)

func main() {
	_ = godotenv.Load()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := rootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wagerctl",
		Short:         "Wager bot administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "config", "directory holding config.yaml")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log database activity")

	cmd.AddCommand(
		MigrateCmd(),
		AssetCmd(),
		WalletCmd(),
		GameCmd(),
	)
	return cmd
}

// openDB loads the configuration and connects to PostgreSQL.
func openDB(cmd *cobra.Command) (*config.Config, *db.Pool, error) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(cmd.Context(), &cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// withDB runs fn against a connected pool.
func withDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, pool, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(cmd.Context(), cfg, pool, args)
	}
}

// MigrateCmd applies the schema.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, _ *config.Config, pool *db.Pool, _ []string) error {
			if err := db.Migrate(ctx, pool.Pool); err != nil {
				return err
			}
			if err := pool.HealthCheck(ctx); err != nil {
				return err
			}
			pterm.Success.Println("Schema is up to date")
			return nil
		}),
	}
}
