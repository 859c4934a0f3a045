package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftblob/internal/blobsdk"
	"github.com/openmined/syftblob/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "SYFTBLOB"
	defaultServerURL = "http://127.0.0.1:8080"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "syftblob",
		Short:         "SyftBlob upload client",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("server", "s", defaultServerURL, "SyftBlob server URL")
	cmd.PersistentFlags().StringP("output", "o", outputText, "Output format (text, json, yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")

	cmd.AddCommand(
		newUploadCmd(),
		newStatusCmd(),
		newCancelCmd(),
		newBucketsCmd(),
		newListCmd(),
		newGetCmd(),
		newRemoveCmd(),
		newRapidCmd(),
		newConfirmCmd(),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("ERROR"), err)
		os.Exit(1)
	}
}

func setupLogger(cmd *cobra.Command) {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))
}

// serverURL resolves --server, then SYFTBLOB_SERVER, then the default
func serverURL(cmd *cobra.Command) string {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.BindPFlag("server", cmd.Flags().Lookup("server"))
	return v.GetString("server")
}

func newClient(cmd *cobra.Command) (*blobsdk.Client, error) {
	return blobsdk.New(serverURL(cmd))
}
