package engine

import (
	"errors"
	"testing"

	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/stretchr/testify/suite"
)

type EngineTestSuite struct {
	suite.Suite
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (suite *EngineTestSuite) TestOnProcessDataCallbackType() {
	// Test that the callback type works correctly
	var callback OnProcessDataCallback = func(current int, total int) error {
		return nil
	}

	suite.NotNil(callback)
	err := callback(1, 10)
	suite.NoError(err)
}

func (suite *EngineTestSuite) TestOnProcessDataCallbackWithProgress() {
	var progress []int
	callback := OnProcessDataCallback(func(current int, total int) error {
		progress = append(progress, current)
		return nil
	})

	for i := 1; i <= 5; i++ {
		err := callback(i, 5)
		suite.NoError(err)
	}

	suite.Equal([]int{1, 2, 3, 4, 5}, progress)
}

func (suite *EngineTestSuite) TestOnProcessDataCallbackAbort() {
	stop := errors.New("stop")
	callback := OnProcessDataCallback(func(current int, total int) error {
		if current == 3 {
			return stop
		}

		return nil
	})

	var err error

	processed := 0

	for i := 1; i <= 5; i++ {
		if err = callback(i, 5); err != nil {
			break
		}

		processed++
	}

	suite.ErrorIs(err, stop)
	suite.Equal(2, processed)
}

func (suite *EngineTestSuite) TestLifecycleCallbacksNilByDefault() {
	callbacks := LifecycleCallbacks{}

	suite.Nil(callbacks.OnRunStart)
	suite.Nil(callbacks.OnRunEnd)
	suite.Nil(callbacks.OnProcessData)
}

func (suite *EngineTestSuite) TestLifecycleCallbacksInvocation() {
	var startedID string

	var endedStats *types.BacktestStats

	onStart := OnRunStartCallback(func(runID string, strategyName string, totalBars int) error {
		startedID = runID
		return nil
	})
	onEnd := OnRunEndCallback(func(runID string, stats *types.BacktestStats, err error) {
		endedStats = stats
	})

	callbacks := LifecycleCallbacks{
		OnRunStart: &onStart,
		OnRunEnd:   &onEnd,
	}

	suite.Require().NotNil(callbacks.OnRunStart)
	suite.NoError((*callbacks.OnRunStart)("run-1", "ema_crossover", 100))
	(*callbacks.OnRunEnd)("run-1", &types.BacktestStats{NumberOfTrades: 2}, nil)

	suite.Equal("run-1", startedID)
	suite.Equal(2, endedStats.NumberOfTrades)
}
