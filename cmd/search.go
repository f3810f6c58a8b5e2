package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/castwave/client/pkg/podcast"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	searchPages    int
	searchPageSize int
)

//nolint:gochecknoglobals // Cobra commands are typically global
var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search podcasts",
	Long:  `Search podcasts, loading up to --pages pages of results into one list.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchPages, "pages", 1, "number of result pages to load")
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", podcast.DefaultPageSize, "results per page")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, _, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer stopApp(app)

	results := app.Podcasts().SearchPages(args[0], podcast.PageOptions{
		Disabled: true,
		PageSize: searchPageSize,
	})
	defer results.Close()

	for i := 0; i < searchPages; i++ {
		_, requested, err := results.FetchNextPage(ctx)
		if err != nil {
			return err
		}

		if !requested && !results.HasNextPage() {
			break
		}
	}

	var podcasts []podcast.Podcast
	for _, page := range results.State().Data.Pages {
		podcasts = append(podcasts, page.Results...)
	}

	printPodcasts(cmd.OutOrStdout(), podcasts)

	if results.HasNextPage() {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nMore results available, use --pages to load them.")
	}

	return nil
}

func printPodcasts(out io.Writer, podcasts []podcast.Podcast) {
	if len(podcasts) == 0 {
		_, _ = fmt.Fprintln(out, "No podcasts found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tEPISODE\tHOST\tGUEST\tDURATION")

	for _, p := range podcasts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.PodcastTitle, p.EpisodeTitle, p.Interviewer.Name, p.Speaker.Name, formatDuration(p.Duration))
	}

	_ = w.Flush()
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}

	total := int(seconds)

	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
