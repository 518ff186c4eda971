// Package main implements licensectl, the administrative CLI for the
// CNW Licensing Authority.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing"
	"github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing/licensestore"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "licensectl",
		Short: "Administer the CNW Licensing Authority",
		Long: `licensectl issues, revokes and validates CNW licenses and machine
activations. Configuration comes from LICENSECTL_* environment variables;
a .env file in the working directory is honored when present.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		keygenCmd(),
		convertCmd(),
		issueCmd(),
		revokeCmd(),
		reactivateCmd(),
		listCmd(),
		activateCmd(),
		deactivateCmd(),
		validateCmd(),
		versionCmd(),
	)
	return root
}

// config holds licensectl settings, loaded from LICENSECTL_* environment
// variables.
type config struct {
	Store          string `envconfig:"STORE" default:"sqlite"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	MongoURI       string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase  string `envconfig:"MONGO_DATABASE" default:"cnw_licensing"`
	SQLitePath     string `envconfig:"SQLITE_PATH" default:"cnw-licensing.db"`
	TablePrefix    string `envconfig:"TABLE_PREFIX" default:"cnw_licensing"`
	SigningKeyFile string `envconfig:"SIGNING_KEY_FILE"`
	PublicKeyFile  string `envconfig:"PUBLIC_KEY_FILE"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig() (*config, error) {
	// Existing environment variables win over the .env file.
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process("licensectl", &cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return &cfg, nil
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// openStore opens the persistence backend named by LICENSECTL_STORE and
// returns it with a cleanup function releasing the underlying connection.
func openStore(ctx context.Context, cfg *config) (licensestore.Store, func(context.Context), error) {
	switch cfg.Store {
	case "memory":
		return licensestore.NewMemoryStore(), func(context.Context) {}, nil

	case "sqlite":
		s, err := licensestore.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func(ctx context.Context) { _ = s.Close(ctx) }, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("LICENSECTL_DATABASE_URL is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		s, err := licensestore.NewPostgresStore(ctx, pool, licensestore.WithTablePrefix(cfg.TablePrefix))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func(context.Context) { pool.Close() }, nil

	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongodb: %w", err)
		}
		s, err := licensestore.NewMongoStore(ctx, client.Database(cfg.MongoDatabase),
			licensestore.WithCollectionPrefix(cfg.TablePrefix))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return s, func(ctx context.Context) { _ = client.Disconnect(ctx) }, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q: want memory, sqlite, postgres or mongo", cfg.Store)
}

// newRegistry wires the configured store and key material into a
// Registry. Signing commands need LICENSECTL_SIGNING_KEY_FILE; validate
// alone works with LICENSECTL_PUBLIC_KEY_FILE.
func newRegistry(ctx context.Context, cfg *config, logger *slog.Logger) (*cnwlicensing.Registry, func(context.Context), error) {
	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []cnwlicensing.RegistryOption{cnwlicensing.WithRegistryLogger(logger)}
	if cfg.SigningKeyFile != "" {
		pemData, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			cleanup(ctx)
			return nil, nil, fmt.Errorf("read signing key: %w", err)
		}
		signer, err := cnwlicensing.SignerFromPEM(pemData)
		if err != nil {
			cleanup(ctx)
			return nil, nil, err
		}
		opts = append(opts, cnwlicensing.WithSigner(signer))
	}
	if cfg.PublicKeyFile != "" {
		pemData, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			cleanup(ctx)
			return nil, nil, fmt.Errorf("read public key: %w", err)
		}
		verifier, err := cnwlicensing.VerifierFromPEM(pemData)
		if err != nil {
			cleanup(ctx)
			return nil, nil, err
		}
		opts = append(opts, cnwlicensing.WithVerifier(verifier))
	}

	reg, err := cnwlicensing.NewRegistry(store, opts...)
	if err != nil {
		cleanup(ctx)
		return nil, nil, err
	}
	return reg, cleanup, nil
}

// runWithRegistry loads configuration, opens the store, and hands a
// wired Registry to fn, closing everything afterwards.
func runWithRegistry(cmd *cobra.Command, fn func(ctx context.Context, reg *cnwlicensing.Registry) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	reg, cleanup, err := newRegistry(ctx, cfg, newLogger(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer cleanup(ctx)
	return fn(ctx, reg)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("licensectl version %s\n", version)
		},
	}
}
