package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/coordinator/internal/mirror"
	"github.com/dyluth/coordinator/internal/printer"
	"github.com/dyluth/coordinator/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchRedis        bool
	watchSessionID    string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor real-time session activity",
	Long: `Stream roster changes, shared context, questions and answers as they
happen.

By default the hub is watched directly. With --redis, events are read from
the Redis mirror instead, which works for any number of watchers and, with
no --session-id, across every session published to that Redis.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch the local hub
  coordinator watch

  # Export events as JSON
  coordinator watch --output=json > events.jsonl

  # Watch all sessions mirrored to Redis
  coordinator watch --redis`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().BoolVar(&watchRedis, "redis", false, "Read events from the Redis mirror instead of the hub")
	watchCmd.Flags().StringVar(&watchSessionID, "session-id", "", "With --redis, only this session (default: all)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	outputFormat, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var src watch.Source
	if watchRedis {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Redis == nil {
			return printer.Error(
				"no Redis configured",
				"--redis needs a Redis URL to read mirrored events from.",
				[]string{
					"Set REDIS_URL:\n  REDIS_URL=redis://localhost:6379 coordinator watch --redis",
					"Add a redis section to coordinator.yml",
				},
			)
		}

		rdb, err := mirror.NewClient(cfg.Redis.URL)
		if err != nil {
			return printer.Error("invalid Redis URL", err.Error(), nil)
		}
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return printer.ErrorWithContext(
				"Redis connection failed",
				fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
				map[string]string{"Error": err.Error()},
				[]string{"Check Redis is running and REDIS_URL is correct"},
			)
		}

		mirrorSrc, err := watch.NewMirrorSource(ctx, rdb, cfg.Redis.ChannelPrefix, watchSessionID)
		if err != nil {
			return requestFailed("subscribe to Redis", err)
		}
		src = mirrorSrc
	} else {
		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		hubSrc, err := watch.NewHubSource(ctx, c)
		if err != nil {
			return requestFailed("subscribe to hub", err)
		}
		src = hubSrc
	}

	if err := watch.StreamActivity(ctx, src, outputFormat, cmd.OutOrStdout()); err != nil {
		return printer.Error("watch stopped", err.Error(), []string{"Check the coordinator is still running"})
	}
	return nil
}
