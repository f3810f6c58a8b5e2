package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/castwave/client/pkg/query"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var watchCmd = &cobra.Command{
	Use:   "watch <path|url>...",
	Short: "Keep queries bound and print every change",
	Long: `Binds each path and prints the record whenever it changes. Refresh schedules,
the metrics server and the inspection API run while watching. Stops on SIGINT
or SIGTERM.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, config, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer stopApp(app)

	out := cmd.OutOrStdout()

	var mu sync.Mutex

	show := func(state query.State[json.RawMessage]) {
		mu.Lock()
		defer mu.Unlock()

		line := fmt.Sprintf("%s %s %s", time.Now().Format(time.TimeOnly), state.Status, state.Key)

		switch {
		case state.Err != nil:
			line += " error=" + state.Err.Error()
		case state.HasData:
			line += " " + string(state.Data)
		}

		_, _ = fmt.Fprintln(out, line)
	}

	for _, arg := range args {
		key, err := resolveKey(app.Client(), arg)
		if err != nil {
			return err
		}

		b := query.Bind(app.Store(), key, query.Options[json.RawMessage]{
			StaleTime: config.Cache.StaleTime,
			OnChange:  show,
		})
		defer b.Close()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("Stopping watch")

	return nil
}
