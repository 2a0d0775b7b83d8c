package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flume/internal/cli"
	"github.com/shaiso/Flume/internal/mq"
)

func newWatchCmd(g *globals, outputFn func() *cli.Output) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print pipeline updates published to RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			e, err := newEnv(ctx, g.configPath, os.Stderr)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.conn == nil {
				if url == "" {
					url = mq.DefaultURL()
				}
				if err := e.connectMQ(ctx, url); err != nil {
					return err
				}
			}

			queue, err := mq.DeclareWatchQueue(ctx, e.conn)
			if err != nil {
				return err
			}

			out := outputFn()
			watcher := mq.NewWatcher(e.conn, e.logger, mq.WatcherConfig{
				Queue:   queue,
				OnEvent: printEvent(out),
			})

			err = watcher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "RabbitMQ URL (overrides config)")

	return cmd
}

// printEvent печатает каждое событие одной строкой таблицы.
func printEvent(out *cli.Output) mq.EventFunc {
	return func(_ context.Context, ev mq.Event) error {
		detail := ev.Error
		if ev.Type == mq.MessageTypeStarted {
			detail = fmt.Sprintf("%s (%d stages)", ev.Name, ev.Stages)
		}

		return out.Print(
			[]string{"TIME", "TYPE", "PIPELINE", "DETAIL"},
			[][]string{{ev.Timestamp.Format(time.RFC3339), string(ev.Type), ev.PipelineID, detail}},
			ev,
		)
	}
}
