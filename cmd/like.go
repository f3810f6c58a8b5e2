package cmd

import (
	"fmt"

	"github.com/castwave/client/pkg/podcast"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	likeUndo    bool
	likeDislike bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var likeCmd = &cobra.Command{
	Use:   "like <podcast-id>",
	Short: "Like, unlike or dislike a podcast",
	Long:  `Like a podcast as the signed-in user. Cached liked lists are marked stale afterwards.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runLike,
}

func init() {
	rootCmd.AddCommand(likeCmd)
	likeCmd.Flags().BoolVar(&likeUndo, "unlike", false, "remove the like (or dislike with --dislike)")
	likeCmd.Flags().BoolVar(&likeDislike, "dislike", false, "dislike instead of like")
}

func runLike(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, _, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer stopApp(app)

	api := app.Podcasts()
	id := args[0]

	var res podcast.Result

	if likeDislike {
		m, err := api.Dislike(podcast.Hooks[podcast.Result]{})
		if err != nil {
			return err
		}

		res, err = m.Mutate(ctx, podcast.DislikeBody{PodcastID: id, Disliked: !likeUndo})
		if err != nil {
			return fmt.Errorf("failed to dislike %s: %w", id, err)
		}
	} else {
		m, err := api.Like(podcast.Hooks[podcast.Result]{})
		if err != nil {
			return err
		}

		res, err = m.Mutate(ctx, podcast.LikeBody{PodcastID: id, Liked: !likeUndo})
		if err != nil {
			return fmt.Errorf("failed to like %s: %w", id, err)
		}
	}

	n := api.InvalidateLiked() + api.InvalidatePodcast(id)
	logger.WithField("invalidated", n).Debug("Marked affected queries stale")

	message := res.Message
	if message == "" {
		message = "Done"
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), message)

	return nil
}
