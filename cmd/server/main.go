package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftblob/internal/server"
	"github.com/openmined/syftblob/internal/server/blob"
	"github.com/openmined/syftblob/internal/server/upload"
	"github.com/openmined/syftblob/internal/utils"
	"github.com/openmined/syftblob/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SYFTBLOB"

var (
	home, _        = os.UserHomeDir()
	defaultDataDir = filepath.Join(home, ".syftblob")
)

var rootCmd = &cobra.Command{
	Use:     "syftblob-server",
	Short:   "SyftBlob resumable upload server",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.SilenceUsage = true

		closeLog, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		srv, err := server.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return srv.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().String("cert", "", "Path to the TLS certificate file")
	rootCmd.Flags().String("key", "", "Path to the TLS key file")
	rootCmd.Flags().StringP("data-dir", "d", defaultDataDir, "Directory for the state database and logs")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("config", "f", "", "Server config file (yaml or json)")
}

func main() {
	slog.SetDefault(slog.New(consoleHandler(slog.LevelInfo)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v := viper.New()

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read '%s': %w", configFile, err)
		}
	}

	setDefaults(v)

	v.BindPFlag("http.addr", cmd.Flags().Lookup("bind"))
	v.BindPFlag("http.cert_file", cmd.Flags().Lookup("cert"))
	v.BindPFlag("http.key_file", cmd.Flags().Lookup("key"))
	v.BindPFlag("data_dir", cmd.Flags().Lookup("data-dir"))
	v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg server.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so env overrides reach nested sections
func setDefaults(v *viper.Viper) {
	up := upload.DefaultConfig()

	v.SetDefault("http.addr", server.DefaultAddr)
	v.SetDefault("http.cert_file", "")
	v.SetDefault("http.key_file", "")
	v.SetDefault("http.rate_limit", server.DefaultRateLimit)
	v.SetDefault("http.cors_origins", []string{})

	v.SetDefault("blob.type", blob.BackendFS)
	v.SetDefault("blob.fs.root_dir", filepath.Join(defaultDataDir, "blobs"))
	v.SetDefault("blob.s3.bucket_name", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.access_key", "")
	v.SetDefault("blob.s3.secret_key", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.use_accelerate", false)

	v.SetDefault("upload.chunk_size", up.ChunkSize)
	v.SetDefault("upload.max_object_size", up.MaxObjectSize)
	v.SetDefault("upload.session_ttl", up.SessionTTL)
	v.SetDefault("upload.unconfirmed_ttl", up.UnconfirmedTTL)
	v.SetDefault("upload.sweep_interval", up.SweepInterval)
	v.SetDefault("upload.session_store", up.SessionStore)
	v.SetDefault("upload.staging_compression", up.StagingCompression)
	v.SetDefault("upload.digest_algorithm", up.DigestAlgorithm)
	v.SetDefault("upload.catalog_cache_size", up.CatalogCacheSize)
	v.SetDefault("upload.spool_dir", "")

	v.SetDefault("bucket_refresh", server.DefaultBucketRefresh)
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("log_level", "info")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func consoleHandler(level slog.Level) slog.Handler {
	return tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
}

// setupLogger logs to the console and to data_dir/logs/server.log
func setupLogger(cfg *server.Config) (func(), error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logFile := filepath.Join(cfg.DataDir, "logs", "server.log")
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(utils.NewTeeHandler(consoleHandler(level), fileHandler)))

	return func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}, nil
}
