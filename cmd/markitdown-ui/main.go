// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the markitdown-ui CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markitdown-ui/internal/logx"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the markitdown-ui CLI.
var rootCmd = &cobra.Command{
	Use:   "markitdown-ui",
	Short: "Web front end for converting documents to Markdown with markitdown",
	Long: `markitdown-ui converts PDF, Office, image, HTML and data files, as well as
web pages, into Markdown. Conversion is delegated to markitdown, run either
as a local binary or from the markitdown container image.

Run "markitdown-ui serve" to start the web UI on http://localhost:7860, or use
the convert and preview subcommands from the terminal.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logx.Configure(viper.GetString("log.level"), viper.GetString("log.format"), os.Stderr)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./markitdown-ui.yaml or ~/.config/markitdown-ui/markitdown-ui.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("backend", "", "conversion backend: auto, binary, container, or native")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("conversion.backend", rootCmd.PersistentFlags().Lookup("backend"))

	setDefaults(viper.GetViper(), types.DefaultConfig())
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("markitdown-ui")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "markitdown-ui"))
		}
	}

	viper.SetEnvPrefix("MARKITDOWN_UI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key so environment variables and flags can
// override it.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("conversion.backend", string(d.Conversion.Backend))
	v.SetDefault("conversion.image", d.Conversion.Image)
	v.SetDefault("conversion.binary", d.Conversion.Binary)
	v.SetDefault("conversion.native_html", d.Conversion.NativeHTML)
	v.SetDefault("conversion.timeout", d.Conversion.Timeout)

	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.max_bytes", d.Fetch.MaxBytes)

	v.SetDefault("jobs.max_batches", d.Jobs.MaxBatches)
	v.SetDefault("jobs.session_ttl", d.Jobs.SessionTTL)

	v.SetDefault("output.default_dir", d.Output.DefaultDir)
	v.SetDefault("output.frontmatter", d.Output.Frontmatter)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// loadConfig decodes the effective configuration. An empty
// output.default_dir resolves to ~/Documents.
func loadConfig(v *viper.Viper) (types.Config, error) {
	cfg := types.DefaultConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Output.DefaultDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Output.DefaultDir = filepath.Join(home, "Documents")
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
