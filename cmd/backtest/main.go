package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine"
	backtest "github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/runtime"
	"github.com/rxtech-lab/argo-backtest/internal/strategy"
	"github.com/rxtech-lab/argo-backtest/internal/version"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	schemaName       = "backtest-engine-v1-config.json"
	sampleConfigName = "backtest-engine-v1-config.yaml"
)

// loadSeries reads the bar file at path through source, clipped to the configured window.
func loadSeries(source datasource.DataSource, path string, config backtest.BacktestEngineV1Config) (*datasource.Series, error) {
	defer source.Close()

	if err := source.Initialize(path); err != nil {
		return nil, err
	}

	return source.Load(config.StartTime, config.EndTime)
}

// loadConfig reads the config file when one is given, otherwise it starts from the defaults
// with the given cash.
func loadConfig(path string, cash float64) (backtest.BacktestEngineV1Config, error) {
	if path != "" {
		return backtest.LoadConfig(path)
	}

	config := backtest.EmptyConfig()
	config.InitialCapital = cash

	return config, nil
}

// loadParams reads a YAML mapping of strategy parameters. An empty path means no parameters.
func loadParams(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters: %w", err)
	}

	return runtime.ParseParams(data)
}

// runAction loads the data, runs the strategy and writes the results.
func runAction(ctx context.Context, cmd *cli.Command) error {
	dataPath := cmd.String("data")
	strategyName := cmd.String("strategy")
	paramsPath := cmd.String("params")
	resultsFolder := cmd.String("results")

	level := zapcore.InfoLevel
	if cmd.Bool("verbose") {
		level = zapcore.DebugLevel
	}

	runLogger, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer runLogger.Sync() //nolint:errcheck

	config, err := loadConfig(cmd.String("config"), cmd.Float("cash"))
	if err != nil {
		return err
	}

	params, err := loadParams(paramsPath)
	if err != nil {
		return err
	}

	factory, err := strategy.Get(strategyName)
	if err != nil {
		return err
	}

	source, err := datasource.NewDataSource(":memory:", runLogger)
	if err != nil {
		return err
	}

	series, err := loadSeries(source, dataPath, config)
	if err != nil {
		return err
	}

	runner, err := backtest.NewBacktestEngineV1(series, factory, config)
	if err != nil {
		return err
	}

	runner.SetLogger(runLogger)

	var callbacks engine.LifecycleCallbacks

	if !cmd.Bool("quiet") {
		bar := progressbar.Default(int64(runner.Series().Len()))
		bar.Describe(fmt.Sprintf("Processing %s with %s", filepath.Base(dataPath), strategyName))

		onProcessData := engine.OnProcessDataCallback(func(current int, _ int) error {
			return bar.Set(current)
		})
		callbacks.OnProcessData = &onProcessData
	}

	stats, err := runner.Run(params, callbacks)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, stats.String())

	folder := backtest.ResultFolder(resultsFolder, strategyName, paramsPath, dataPath, config)
	if err := runner.WriteResults(folder, stats); err != nil {
		return err
	}

	runLogger.Info("Results written", zap.String("folder", folder), zap.String("run_id", stats.ID))

	return nil
}

// schemaAction prints the parameter schema of a strategy, or the engine config schema. With
// --output it writes the engine config schema and a sample config into that folder.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	if name := cmd.String("strategy"); name != "" {
		schema, err := strategy.ConfigSchema(name)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.Root().Writer, schema)

		return nil
	}

	config := backtest.EmptyConfig()

	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	output := cmd.String("output")
	if output == "" {
		fmt.Fprintln(cmd.Root().Writer, schemaJSON)

		return nil
	}

	return writeSchema(output, schemaJSON, config)
}

// writeSchema writes the schema and, unless one already exists, a sample config referencing it.
func writeSchema(folder string, schemaJSON string, config backtest.BacktestEngineV1Config) error {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	schemaPath := filepath.Join(folder, schemaName)
	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}

	sampleConfigPath := filepath.Join(folder, sampleConfigName)
	if _, err := os.Stat(sampleConfigPath); os.IsNotExist(err) {
		config.InitialCapital = 10000

		yamlBytes, err := yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal sample config to yaml: %w", err)
		}

		yamlBytes = append([]byte("# yaml-language-server: $schema="+schemaName+"\n"), yamlBytes...)
		if err := os.WriteFile(sampleConfigPath, yamlBytes, 0644); err != nil {
			return fmt.Errorf("failed to write sample config to file: %w", err)
		}
	}

	return nil
}

func strategiesAction(ctx context.Context, cmd *cli.Command) error {
	for _, definition := range strategy.Definitions() {
		fmt.Fprintf(cmd.Root().Writer, "%-20s %s\n", definition.Name, definition.Description)
	}

	return nil
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "backtest",
		Usage:   "Backtest trading strategies on OHLCV bar files",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a strategy over a CSV or Parquet bar file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to the bar file (.csv or .parquet)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "strategy",
						Aliases:  []string{"s"},
						Usage:    fmt.Sprintf("Name of the strategy (%v)", strategy.Names()),
						Required: true,
					},
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the backtest config YAML",
					},
					&cli.StringFlag{
						Name:    "params",
						Aliases: []string{"p"},
						Usage:   "Path to a YAML file with strategy parameters",
					},
					&cli.FloatFlag{
						Name:  "cash",
						Usage: "Initial capital when no config file is given",
						Value: 10000,
					},
					&cli.StringFlag{
						Name:    "results",
						Aliases: []string{"r"},
						Usage:   "Folder the results are written to",
						Value:   "results",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Do not show the progress bar",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Log every order rejection and trade exit",
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the backtest config or of a strategy's parameters",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Print the parameter schema of this strategy",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Write the config schema and a sample config into this folder",
					},
				},
				Action: schemaAction,
			},
			{
				Name:   "strategies",
				Usage:  "List the built-in strategies",
				Action: strategiesAction,
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
