// gridctl — инструмент командной строки для управления service grid
// через HTTP API.
//
// Использование:
//
//	gridctl [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	plan    Deployment plan (apply, show)
//	state   Документы сущностей (list, get)
//	tasks   Очереди consumer'ов
//	status  Обзор агентов, сервисов и instances
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/ServiceGrid/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "gridctl",
		Short:         "gridctl — service grid control tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewPlanCmd(clientFn, outputFn),
		cli.NewStateCmd(clientFn, outputFn),
		cli.NewTasksCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
