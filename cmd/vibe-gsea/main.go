// Package main provides the vibe-gsea command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errPartialFailure marks a run where at least one collection failed.
var errPartialFailure = errors.New("one or more collections failed")

// usageError marks invalid command-line input.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errPartialFailure):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	case errors.As(err, new(usageError)):
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprint(os.Stderr, root.UsageString())
		return ExitUsage
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "vibe-gsea",
		Short: "Rank differential expression results and run gene-set enrichment",
		Long: `vibe-gsea turns a differential expression table into a ranked gene list
(score = -log10(p) * sign(log2FC)) and runs preranked GSEA against
MSigDB gene-set collections, one collection per worker.`,
		Example: `  # Download GO and KEGG collections (one-time setup)
  vibe-gsea download --organism human

  # Rank genes and test all default collections
  vibe-gsea run results_treated_vs_control.csv

  # Only write the ranked list
  vibe-gsea rank results.csv -o results.rnk`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cfgFile); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
	}
	root.SetVersionTemplate("vibe-gsea version {{.Version}}\n")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.vibe-gsea.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Verbose (debug) logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newRankCmd())
	root.AddCommand(newDownloadCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// initConfig reads the config file and VIBE_GSEA_* environment variables.
func initConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".vibe-gsea")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VIBE_GSEA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

// newLogger builds the CLI logger: debug-level development output with
// --verbose, info-level console output otherwise. Both write to stderr.
func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	return cfg.Build()
}

// defaultDBPath returns the default results database location.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vibe-gsea", "results.duckdb")
}
