// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markitdown-ui/internal/convert"
	"github.com/pdiddy/markitdown-ui/internal/fetch"
	"github.com/pdiddy/markitdown-ui/internal/jobs"
	"github.com/pdiddy/markitdown-ui/internal/logx"
	"github.com/pdiddy/markitdown-ui/internal/metrics"
	"github.com/pdiddy/markitdown-ui/internal/output"
	"github.com/pdiddy/markitdown-ui/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI",
	Long: `Serve starts the web UI. Users upload files or enter a URL, watch the
conversion progress, preview the Markdown with its word count, and save the
result to a directory they choose. Jobs are kept in memory for the browser
session only.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default 7860)")
	serveCmd.Flags().String("host", "", "listen host (default 127.0.0.1; 0.0.0.0 for all interfaces)")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := convert.NewRouter(ctx, cfg.Conversion)
	if err != nil {
		return err
	}
	logx.Log.Info().Str("backend", router.Name()).Msg("conversion backend ready")

	mgr, err := jobs.New(jobs.Options{
		Converter:  router,
		Fetcher:    fetch.New(nil, cfg.Fetch, ""),
		Writer:     output.NewWriter(afero.NewOsFs(), cfg.Output.Frontmatter),
		MaxBatches: cfg.Jobs.MaxBatches,
		SessionTTL: cfg.Jobs.SessionTTL,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	metrics.SetBuildInfo(version, router.Name())

	viper.OnConfigChange(func(e fsnotify.Event) {
		logx.SetLevel(viper.GetString("log.level"))
		logx.Log.Info().Str("file", e.Name).Str("level", viper.GetString("log.level")).Msg("config reloaded")
	})
	if viper.ConfigFileUsed() != "" {
		viper.WatchConfig()
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr: addr,
		Handler: server.New(server.Options{
			Config:     cfg.Server,
			Jobs:       mgr,
			Converter:  router,
			Gatherer:   reg,
			DefaultDir: cfg.Output.DefaultDir,
			Version:    version,
		}),
		// Event streams end when the process is signalled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Log.Info().Str("addr", addr).Msg("serving markitdown-ui")
		fmt.Fprintf(cmd.OutOrStdout(), "Open http://%s in your browser\n", displayAddr(cfg.Server.Host, cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func displayAddr(host string, port int) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
