package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/castwave/client/pkg/auth"
	"github.com/castwave/client/pkg/podcast"
	"github.com/castwave/client/pkg/query"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show recommendations, generation queue and listen history",
	Long:  `Loads the signed-in user's recommendations, generation queue and listen history concurrently.`,
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, config, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer stopApp(app)

	api := app.Podcasts()
	staleTime := config.Cache.StaleTime

	recommendations := api.Recommendations(query.Options[[]podcast.Podcast]{Disabled: true, StaleTime: staleTime})
	defer recommendations.Close()

	queue := api.Queue(query.Options[podcast.Queue]{Disabled: true, StaleTime: staleTime})
	defer queue.Close()

	history := api.History(podcast.DefaultPageSize, 0, query.Options[[]podcast.Podcast]{Disabled: true, StaleTime: staleTime})
	defer history.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := recommendations.Refetch(gctx)
		return err
	})
	g.Go(func() error {
		_, err := queue.Refetch(gctx)
		return err
	})
	g.Go(func() error {
		_, err := history.Refetch(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if user, err := app.CurrentUser(ctx); err == nil {
		_, _ = fmt.Fprintf(out, "Signed in as %s\n\n", displayName(user))
	}

	_, _ = fmt.Fprintln(out, "== Recommended")
	printPodcasts(out, recommendations.State().Data)

	_, _ = fmt.Fprintln(out, "\n== Generation queue")
	printQueue(out, queue.State().Data)

	_, _ = fmt.Fprintln(out, "\n== Recently played")
	printPodcasts(out, history.State().Data)

	return nil
}

func printQueue(out io.Writer, q podcast.Queue) {
	if len(q.Tasks) == 0 {
		_, _ = fmt.Fprintln(out, "Queue is empty.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tPODCAST\tSTATUS\tPROGRESS\tMESSAGE")

	for _, t := range q.Tasks {
		message := t.ProgressMessage
		if t.Status == podcast.TaskFailed {
			message = t.ErrorMessage
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\n", t.ID, t.PodcastID, t.Status, t.Progress, message)
	}

	_ = w.Flush()
}

func displayName(user auth.User) string {
	if user.Email != "" {
		return user.Email
	}

	return user.ID
}
