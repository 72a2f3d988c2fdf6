package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	backtest "github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/mocks"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type BacktestCmdTestSuite struct {
	suite.Suite
	tempDir string
}

func TestBacktestCmdSuite(t *testing.T) {
	suite.Run(t, new(BacktestCmdTestSuite))
}

func (suite *BacktestCmdTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
}

func (suite *BacktestCmdTestSuite) execute(args ...string) (string, error) {
	var out bytes.Buffer

	cmd := newCommand()
	cmd.Writer = &out

	err := cmd.Run(context.Background(), append([]string{"backtest"}, args...))

	return out.String(), err
}

func (suite *BacktestCmdTestSuite) TestStrategies() {
	out, err := suite.execute("strategies")
	suite.Require().NoError(err)

	suite.Contains(out, "breakout_trailing")
	suite.Contains(out, "ema_crossover")
	suite.Contains(out, "rsi_reversion")
}

func (suite *BacktestCmdTestSuite) TestSchema() {
	out, err := suite.execute("schema")
	suite.Require().NoError(err)
	suite.Contains(out, "initial_capital")

	out, err = suite.execute("schema", "--strategy", "rsi_reversion")
	suite.Require().NoError(err)
	suite.Contains(out, "atr_multiplier")

	_, err = suite.execute("schema", "--strategy", "missing")
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (suite *BacktestCmdTestSuite) TestSchemaOutput() {
	folder := filepath.Join(suite.tempDir, "config")

	_, err := suite.execute("schema", "--output", folder)
	suite.Require().NoError(err)

	schemaContent, err := os.ReadFile(filepath.Join(folder, schemaName))
	suite.Require().NoError(err)
	suite.NotEmpty(schemaContent)

	sampleConfigPath := filepath.Join(folder, sampleConfigName)
	sampleConfigContent, err := os.ReadFile(sampleConfigPath)
	suite.Require().NoError(err)
	suite.Contains(string(sampleConfigContent), "# yaml-language-server: $schema="+schemaName)

	// the sample config is a valid config
	config, err := backtest.LoadConfig(sampleConfigPath)
	suite.Require().NoError(err)
	suite.NoError(config.Validate())

	// an existing sample config is not overwritten
	suite.Require().NoError(os.WriteFile(sampleConfigPath, []byte("initial_capital: 5\n"), 0644))

	_, err = suite.execute("schema", "--output", folder)
	suite.Require().NoError(err)

	content, err := os.ReadFile(sampleConfigPath)
	suite.Require().NoError(err)
	suite.Equal("initial_capital: 5\n", string(content))
}

func (suite *BacktestCmdTestSuite) TestRun() {
	generatorConfig := mocks.DefaultConfig()
	generatorConfig.Count = 500
	generatorConfig.Volatility = 0.01

	dataPath := filepath.Join(suite.tempDir, "bars.csv")
	suite.Require().NoError(mocks.WriteCSV(dataPath, mocks.NewDataGenerator(7).Generate(generatorConfig)))

	paramsPath := filepath.Join(suite.tempDir, "fast.yaml")
	suite.Require().NoError(os.WriteFile(paramsPath, []byte("fast_period: 5\nslow_period: 20\n"), 0644))

	results := filepath.Join(suite.tempDir, "results")

	out, err := suite.execute("run",
		"--data", dataPath,
		"--strategy", "ema_crossover",
		"--params", paramsPath,
		"--results", results,
		"--quiet",
	)
	suite.Require().NoError(err)
	suite.Contains(out, "Sharpe Ratio")

	folder := filepath.Join(results, "ema_crossover", "fast", "bars")
	for _, name := range []string{"trades.parquet", "orders.parquet", "marks.parquet", "stats.yaml"} {
		_, err := os.Stat(filepath.Join(folder, name))
		suite.NoError(err, name)
	}
}

func (suite *BacktestCmdTestSuite) TestRunUnknownStrategy() {
	_, err := suite.execute("run", "--data", "bars.csv", "--strategy", "missing", "--quiet")
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (suite *BacktestCmdTestSuite) TestLoadSeries() {
	ctrl := gomock.NewController(suite.T())
	defer ctrl.Finish()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	config := backtest.TestConfig()
	config.StartTime = optional.Some(start)

	expected := mustSeries(suite, start)

	source := mocks.NewMockDataSource(ctrl)
	gomock.InOrder(
		source.EXPECT().Initialize("bars.parquet").Return(nil),
		source.EXPECT().Load(config.StartTime, config.EndTime).Return(expected, nil),
		source.EXPECT().Close().Return(nil),
	)

	series, err := loadSeries(source, "bars.parquet", config)
	suite.Require().NoError(err)
	suite.Same(expected, series)
}

func (suite *BacktestCmdTestSuite) TestLoadSeriesInitializeFails() {
	ctrl := gomock.NewController(suite.T())
	defer ctrl.Finish()

	source := mocks.NewMockDataSource(ctrl)
	source.EXPECT().Initialize("bars.txt").Return(errors.New(errors.ErrCodeUnsupportedFormat, "unsupported"))
	source.EXPECT().Close().Return(nil)

	_, err := loadSeries(source, "bars.txt", backtest.TestConfig())
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedFormat))
}

func (suite *BacktestCmdTestSuite) TestLoadConfigAndParams() {
	config, err := loadConfig("", 2500)
	suite.Require().NoError(err)
	suite.Equal(2500.0, config.InitialCapital)

	_, err = loadConfig(filepath.Join(suite.tempDir, "missing.yaml"), 0)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	params, err := loadParams("")
	suite.NoError(err)
	suite.Nil(params)

	_, err = loadParams(filepath.Join(suite.tempDir, "missing.yaml"))
	suite.Error(err)
}

func mustSeries(suite *BacktestCmdTestSuite, start time.Time) *datasource.Series {
	bars := mocks.NewDataGenerator(1).Generate(mocks.GeneratorConfig{
		StartTime:    start,
		Interval:     time.Hour,
		Count:        10,
		InitialPrice: 50,
		Volatility:   0.01,
		VolumeBase:   100,
	})

	series, err := datasource.NewSeries(bars, nil)
	suite.Require().NoError(err)

	return series
}
