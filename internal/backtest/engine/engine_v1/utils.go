package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResultFolder returns where the results of a run are written:
// <results>/<strategy>/<params>[/<start>_<end>]/<data file name>.
// paramsPath may be empty, in which case the params folder is "default".
func ResultFolder(resultsFolder string, strategyName string, paramsPath string, dataPath string, config BacktestEngineV1Config) string {
	// Create base folders for strategy and params
	strategyFolder := filepath.Join(resultsFolder, strategyName)

	paramsName := "default"
	if paramsPath != "" {
		paramsName = strings.TrimSuffix(filepath.Base(paramsPath), filepath.Ext(paramsPath))
	}

	paramsFolder := filepath.Join(strategyFolder, paramsName)

	// Create data folder with time range if specified
	var dataFolder string

	if config.StartTime.IsSome() || config.EndTime.IsSome() {
		startTimeStr := "all"
		endTimeStr := "all"

		if config.StartTime.IsSome() {
			startTimeStr = config.StartTime.Unwrap().Format("20060102")
		}

		if config.EndTime.IsSome() {
			endTimeStr = config.EndTime.Unwrap().Format("20060102")
		}

		timeRange := fmt.Sprintf("%s_%s", startTimeStr, endTimeStr)
		dataFolder = filepath.Join(paramsFolder, timeRange)
	} else {
		dataFolder = paramsFolder
	}

	// Add data file name as the final folder
	dataFileName := strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))

	return filepath.Join(dataFolder, dataFileName)
}
