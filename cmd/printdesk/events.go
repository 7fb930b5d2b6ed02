package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"slices"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/event"
)

var (
	eventsRecent int64
	eventsFollow bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read the job event stream mirrored to Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Events.RedisAddr == "" {
			return fmt.Errorf("events.redis_addr is not configured")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		defer rdb.Close()

		pub := event.NewRedisPublisher(rdb, cfg.Events.Channel)
		out := cmd.OutOrStdout()

		if eventsRecent > 0 {
			recent, err := pub.Recent(ctx, eventsRecent)
			if err != nil {
				return err
			}
			// Recent is newest first; print in the order they happened.
			slices.Reverse(recent)
			for _, ev := range recent {
				if err := printEvent(out, ev); err != nil {
					return err
				}
			}
		}

		if !eventsFollow {
			return nil
		}
		return pub.Watch(ctx, func(_ context.Context, ev core.JobEvent) error {
			return printEvent(out, ev)
		})
	},
}

func printEvent(w io.Writer, ev core.JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func init() {
	eventsCmd.Flags().Int64Var(&eventsRecent, "recent", 20, "Print this many stored events first")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Keep printing new events until interrupted")
	rootCmd.AddCommand(eventsCmd)
}
