// flowctl — инструмент командной строки для запуска flows.
//
// Использование:
//
//	flowctl [--json] [--api-url URL] <command> [flags]
//
// Команды:
//
//	ExampleFlow run|show     Запуск и описание flow (по команде на flow)
//	ExampleGPUFlow run|show
//	runs                     Runs на сервере flow-scheduler
//	schedule                 Расписания flows
//	events watch             События runs из RabbitMQ
//	config                   Конфигурация стека
//	step                     Шаг внутри задания AWS Batch
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/batchflows/internal/cli"
	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/flows"
	"github.com/shaiso/batchflows/internal/gpu"
	"github.com/shaiso/batchflows/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	var apiURL string
	var jsonOutput bool

	// CLI по умолчанию пишет логи в человекочитаемом виде
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "text"
	}
	logger := telemetry.NewLogger(os.Stderr, format, telemetry.LogLevel())

	cfg := config.Default()
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }

	app := &cli.App{
		Config: cfg,
		Flows:  flows.Registry(cfg, gpu.NewSystemProber()),
		Logger: logger,
		Output: outputFn,
	}

	rootCmd := &cobra.Command{
		Use:           "flowctl",
		Short:         "flowctl — run batch flows locally or on AWS Batch",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8081"
	if v := os.Getenv("FLOWS_API_URL"); v != "" {
		defaultURL = v
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "flow-scheduler API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddGroup(&cobra.Group{ID: "flows", Title: "Flows:"})
	rootCmd.AddCommand(cli.NewFlowCmds(app)...)
	rootCmd.AddCommand(
		cli.NewRunsCmd(clientFn, outputFn),
		cli.NewScheduleCmd(app, clientFn),
		cli.NewEventsCmd(app),
		cli.NewConfigCmd(app),
		cli.NewStepCmd(app),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return 0
}
