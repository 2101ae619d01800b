package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vibe-gsea configuration",
		Long: `Show, get, or set configuration values. Config is stored in ~/.vibe-gsea.yaml.
Keys match the 'run' flags (organism, category, min-size, max-size, nperm,
seed, alpha, workers, db, ...). VIBE_GSEA_<KEY> environment variables override them.`,
		Example: `  vibe-gsea config                       # show all config
  vibe-gsea config set organism mouse    # default organism
  vibe-gsea config set nperm 10000       # more permutations
  vibe-gsea config get alpha             # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

// configSettings returns the settings read from the config file, without
// the flags bound for the config command itself.
func configSettings() map[string]any {
	settings := viper.AllSettings()
	delete(settings, "config")
	delete(settings, "verbose")
	delete(settings, "help")
	return settings
}

func runConfigShow() error {
	settings := configSettings()
	if len(settings) == 0 {
		fmt.Println("# No configuration set. Config file: ~/.vibe-gsea.yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// parseValue converts boolean- and number-like strings so they are written
// to YAML with their natural type.
func parseValue(value string) any {
	switch value {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

func runConfigSet(key, value string) error {
	viper.Set(key, parseValue(value))

	// Ensure config file exists
	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".vibe-gsea.yaml")
	}

	v := viper.New()
	for k, val := range configSettings() {
		v.Set(k, val)
	}
	if err := v.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Println(val)
	return nil
}
