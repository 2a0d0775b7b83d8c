// Flume — локальный исполнитель pipeline и его HTTP сервер.
//
// Использование:
//
//	flume [--config FILE] [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run        Выполнить pipeline локально
//	validate   Проверить PipelineSpec
//	functions  Список встроенных функций
//	serve      HTTP сервер pipeline
//	watch      Печатать обновления pipeline из RabbitMQ
//	pipeline   Управление pipeline на сервере
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flume/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// globals — значения persistent флагов.
type globals struct {
	configPath string
	apiURL     string
	jsonOutput bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "flume",
		Short:         "Flume — direct runner for keyed and splittable pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("FLUME_CONFIG"), "Path to TOML config")
	rootCmd.PersistentFlags().StringVar(&g.apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(g.apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(g.jsonOutput, os.Stdout, os.Stderr) }

	rootCmd.AddCommand(
		newRunCmd(g, outputFn),
		newValidateCmd(outputFn),
		newFunctionsCmd(outputFn),
		newServeCmd(g),
		newWatchCmd(g, outputFn),
		cli.NewPipelineCmd(clientFn, outputFn),
	)

	return rootCmd
}
