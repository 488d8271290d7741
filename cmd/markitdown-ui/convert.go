// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markitdown-ui/internal/convert"
	"github.com/pdiddy/markitdown-ui/internal/fetch"
	"github.com/pdiddy/markitdown-ui/internal/output"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert files or a web page to Markdown without the UI",
	Long: `Convert runs markitdown on each file in order and writes <name>.md into
the output directory. Existing files are skipped unless --overwrite is given.
With --url, the page is downloaded and converted instead.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("out", "", "output directory (required)")
	convertCmd.Flags().Bool("overwrite", false, "replace existing Markdown files")
	convertCmd.Flags().String("url", "", "convert a web page instead of local files")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	rawURL, _ := cmd.Flags().GetString("url")

	if outDir == "" {
		return fmt.Errorf("%w: pass --out DIR", types.ErrNoLocation)
	}
	if len(args) == 0 && rawURL == "" {
		return fmt.Errorf("provide one or more files, or --url")
	}

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

	sources := make([]convert.Source, 0, len(args)+1)
	for _, a := range args {
		sources = append(sources, convert.Source{Path: a, DisplayName: filepath.Base(a)})
	}
	if rawURL != "" {
		dl, err := fetch.New(nil, cfg.Fetch, "").Fetch(ctx, rawURL)
		if err != nil {
			return err
		}
		defer dl.Cleanup()
		sources = append(sources, convert.Source{Path: dl.Path, DisplayName: rawURL})
	}

	writer := output.NewWriter(afero.NewOsFs(), cfg.Output.Frontmatter)
	save := func(src convert.Source, md string) (string, error) {
		kind, name := types.SourceFile, convert.SuggestName(src.DisplayName)
		if src.DisplayName == rawURL {
			kind, name = types.SourceURL, convert.SuggestURLName(rawURL)
		}
		job := &types.Job{
			Kind:          kind,
			Source:        src.Path,
			DisplayName:   src.DisplayName,
			SuggestedName: name,
			Status:        types.StatusSucceeded,
			Result:        md,
			WordCount:     convert.WordCount(md),
		}
		res, err := writer.Save(job, types.OutputLocation{Directory: outDir}, output.SaveOptions{Overwrite: overwrite})
		if err != nil {
			return "", err
		}
		return res.Path, nil
	}

	result := convert.ConvertBatch(ctx, router, sources, save, cmd.OutOrStdout())
	if result.HasFailures() {
		return fmt.Errorf("%d input(s) failed conversion", result.Failed)
	}
	return nil
}
