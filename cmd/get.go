package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/castwave/client/pkg/query"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var getRefresh bool

//nolint:gochecknoglobals // Cobra commands are typically global
var getCmd = &cobra.Command{
	Use:   "get <path|url>",
	Short: "Fetch an API path through the query cache and print it as JSON",
	Long: `Fetch an API path through the query cache. With a persistent cache a fresh
record is served from Redis without a request; --refresh always refetches.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getRefresh, "refresh", false, "ignore cached data and refetch")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, config, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer stopApp(app)

	key, err := resolveKey(app.Client(), args[0])
	if err != nil {
		return err
	}

	data, err := fetchOrCached(ctx, app.Store(), key, config.Cache.StaleTime, getRefresh)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), data)
}

// fetchOrCached serves a fresh cached record and fetches otherwise.
func fetchOrCached(ctx context.Context, store *query.Store, key string, staleTime time.Duration, refresh bool) (any, error) {
	if rec, ok := store.GetRecord(key); ok && !refresh && rec.HasData() &&
		!rec.IsStale(staleTime, store.Now()) {
		logger.WithField("key", key).Debug("Serving cached record")
		return rec.Data, nil
	}

	return store.Fetch(ctx, key, nil)
}

func printJSON(w io.Writer, data any) error {
	var v any

	if raw, ok := data.(json.RawMessage); ok {
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		v = data
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
