// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markitdown-ui/internal/convert"
)

var previewCmd = &cobra.Command{
	Use:   "preview FILE",
	Short: "Print the first part of a file's Markdown and its word count",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	router, err := convert.NewRouter(ctx, cfg.Conversion)
	if err != nil {
		return err
	}

	p, err := convert.PreviewFile(ctx, router, args[0], filepath.Base(args[0]))
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, p.Text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d words\n", p.WordCount)
	return nil
}
