package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flume/internal/cli"
	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/mq"
	"github.com/shaiso/Flume/internal/runner"
	"github.com/shaiso/Flume/internal/transforms"
)

// readSpec читает и валидирует PipelineSpec из файла.
func readSpec(path string) (*domain.PipelineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	return engine.ParseSpec(data)
}

func newRunCmd(g *globals, outputFn func() *cli.Output) *cobra.Command {
	var parallelism int
	var backend string

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a pipeline locally and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			spec, err := readSpec(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			e, err := newEnv(ctx, g.configPath, os.Stderr)
			if err != nil {
				return err
			}
			defer e.Close()

			stopMetrics := e.serveMetrics()
			defer stopMetrics()

			opts := e.runnerOptions()
			if cmd.Flags().Changed("parallelism") {
				opts.Parallelism = parallelism
			}
			if backend != "" {
				opts.StateBackend = backend
			}

			pipeline, err := runner.Run(ctx, spec, opts)
			if err != nil {
				return err
			}

			if e.publisher != nil {
				payload := mq.StartedPayload{PipelineID: pipeline.ID(), Name: pipeline.Name(), Stages: len(spec.Stages)}
				if err := e.publisher.PublishStarted(ctx, payload); err != nil {
					e.logger.Warn("publish started failed", "error", err)
				}
			}

			// Отмена ctx сигналом останавливает pipeline; ждём без deadline
			st, runErr := pipeline.WaitUntilFinish(context.WithoutCancel(ctx))

			result := cli.PipelineResponse{
				ID:           pipeline.ID(),
				Name:         pipeline.Name(),
				State:        st.String(),
				LanesCreated: pipeline.LanesCreated(),
				ActiveLanes:  pipeline.ActiveLanes(),
			}
			if runErr != nil {
				result.Error = runErr.Error()
			}

			if err := out.Print(
				[]string{"ID", "NAME", "STATE", "LANES", "ERROR"},
				[][]string{{result.ID, result.Name, result.State, strconv.FormatInt(result.LanesCreated, 10), result.Error}},
				result,
			); err != nil {
				return err
			}

			if st != domain.StateDone {
				return fmt.Errorf("pipeline finished in state %s", st)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Worker pool size (overrides config)")
	cmd.Flags().StringVar(&backend, "state", "", "State backend: memory, redis or postgres (overrides config)")

	return cmd
}

func newValidateCmd(outputFn func() *cli.Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a pipeline spec against the built-in functions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(args[0])
			if err != nil {
				return err
			}
			if err := runner.Check(spec, transforms.DefaultRegistry()); err != nil {
				return err
			}

			outputFn().Notice("Pipeline %q is valid: %d stages", spec.Name, len(spec.Stages))
			return nil
		},
	}
}

func newFunctionsCmd(outputFn func() *cli.Output) *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List built-in functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := transforms.DefaultRegistry().Names()

			rows := make([][]string, len(names))
			for i, n := range names {
				rows[i] = []string{n}
			}
			return outputFn().Print([]string{"FUNCTION"}, rows, names)
		},
	}
}
