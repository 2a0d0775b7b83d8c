package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для pipeline на сервере.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines on a Flume server",
	}

	cmd.AddCommand(
		newPipelineSubmitCmd(clientFn, outputFn),
		newPipelineListCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineStopCmd(clientFn, outputFn),
		newPipelineFunctionsCmd(clientFn, outputFn),
	)

	return cmd
}

var pipelineHeaders = []string{"ID", "NAME", "STATE", "LANES", "STARTED", "ERROR"}

func pipelineRow(p PipelineResponse) []string {
	return []string{p.ID, p.Name, p.State, strconv.FormatInt(p.LanesCreated, 10), p.StartedAt, p.Error}
}

func newPipelineSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a pipeline spec (JSON) for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read spec: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("spec %s is not valid JSON", args[0])
			}

			p, err := client.SubmitPipeline(data)
			if err != nil {
				return err
			}
			out.Notice("Pipeline submitted: %s", p.ID)

			if wait {
				p, err = client.WaitPipeline(cmd.Context(), p.ID, interval)
				if err != nil {
					return err
				}
			}

			if err := out.Print(pipelineHeaders, [][]string{pipelineRow(*p)}, p); err != nil {
				return err
			}

			if wait && p.State != "DONE" {
				return fmt.Errorf("pipeline %s finished in state %s", p.ID, p.State)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the pipeline finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --wait")

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines()
			if err != nil {
				return err
			}

			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = pipelineRow(p)
			}

			return out.Print(pipelineHeaders, rows, pipelines)
		},
	}
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			return out.Print(
				[]string{"ID", "NAME", "STATE", "LANES", "ACTIVE", "STARTED", "FINISHED", "ERROR"},
				[][]string{{
					p.ID, p.Name, p.State,
					strconv.FormatInt(p.LanesCreated, 10), strconv.Itoa(p.ActiveLanes),
					p.StartedAt, p.FinishedAt, p.Error,
				}},
				p,
			)
		},
	}
}

func newPipelineStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Cancel a running pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.StopPipeline(args[0])
			if err != nil {
				return err
			}

			out.Notice("Pipeline stopped: %s (%s)", p.ID, p.State)
			return nil
		},
	}
}

func newPipelineFunctionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List functions registered on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			names, err := client.ListFunctions()
			if err != nil {
				return err
			}

			rows := make([][]string, len(names))
			for i, n := range names {
				rows[i] = []string{n}
			}

			return out.Print([]string{"FUNCTION"}, rows, names)
		},
	}
}
