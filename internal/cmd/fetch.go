package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/gateway"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/trending"
	"github.com/medcityai/pubgate/internal/output"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [pmid...]",
	Short: "Fetch full article records",
	Long: `Fetch efetch records for PMIDs in chunks and print the parsed articles.

Ids come from the arguments or, with --search, from an esearch query.
--csv also writes the articles as a trending catalog.`,
	Example: `  pubgate fetch 38000001 38000002
  pubgate fetch --search '"Mayo Clinic"[AD]' --retmax 200 --csv catalog.csv`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("search", "", "Fetch the ids matched by this esearch term")
	fetchCmd.Flags().Int("retmax", 100, "Maximum ids taken from --search")
	fetchCmd.Flags().Int("reldate", 0, "Limit --search to the last N days")
	fetchCmd.Flags().Int("chunk-size", 0, "Ids per efetch request (default from config)")
	fetchCmd.Flags().String("csv", "", "Also write the articles as a catalog CSV")
	fetchCmd.Flags().Bool("progress", true, "Show a progress bar on stderr")
	addOutputFlags(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	term, _ := cmd.Flags().GetString("search")
	retmax, _ := cmd.Flags().GetInt("retmax")
	reldate, _ := cmd.Flags().GetInt("reldate")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	csvPath, _ := cmd.Flags().GetString("csv")
	showProgress, _ := cmd.Flags().GetBool("progress")

	ids := gateway.UniqueIDs(splitArgs(args))
	if len(ids) == 0 && strings.TrimSpace(term) == "" {
		return errors.New("provide pmids or --search")
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	svc, err := openServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	if strings.TrimSpace(term) != "" {
		result, err := svc.client.Search(cmd.Context(), pubmed.SearchQuery{Term: term, RetMax: retmax, RelDate: reldate})
		if err != nil {
			return err
		}
		ids = gateway.UniqueIDs(append(ids, result.IDs...))
	}
	if len(ids) == 0 {
		cmd.PrintErrln("No articles matched.")
		return nil
	}

	articles, err := fetchWithProgress(cmd.Context(), svc.client, ids, chunkSize, showProgress)
	if err != nil {
		return err
	}

	if csvPath != "" {
		if err := trending.WriteCatalog(afero.NewOsFs(), csvPath, articles); err != nil {
			return fmt.Errorf("write catalog: %w", err)
		}
		cmd.PrintErrf("Wrote %d articles to %s\n", len(articles), csvPath)
	}

	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatArticles(articles)
	})
}

func fetchWithProgress(ctx context.Context, client *pubmed.Client, ids []string, chunkSize int, show bool) ([]core.Article, error) {
	if !show {
		return client.FetchArticles(ctx, ids, chunkSize)
	}

	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	name := "Fetching"
	bar := p.New(0,
		mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "Complete",
			),
		),
	)
	bar.EnableTriggerComplete()

	articles, err := client.FetchArticles(ctx, ids, chunkSize, gateway.WithChunkProgress(func(cp gateway.ChunkProgress) {
		bar.SetTotal(int64(cp.Total), false)
		bar.Increment()
	}))
	if err != nil {
		bar.Abort(false)
	} else {
		bar.SetTotal(-1, true)
	}
	p.Wait()
	return articles, err
}

// splitArgs accepts ids as separate arguments or comma separated.
func splitArgs(args []string) []string {
	var ids []string
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
	}
	return ids
}
