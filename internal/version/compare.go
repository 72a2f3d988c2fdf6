package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// CheckStrategyCompatibility checks that a strategy written against strategyVersion of the
// StrategyApi can run on engineVersion.
//
// Compatibility Rules:
//   - If either version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - The engine minor version must be at least the strategy's, since minor releases only add to the api
//   - Patch versions are ignored
//
// Examples:
//   - Engine 1.2.0, Strategy 1.2.0 -> OK
//   - Engine 1.3.0, Strategy 1.2.4 -> OK (newer engine)
//   - Engine 1.2.0, Strategy 1.3.0 -> ERROR (strategy needs a newer engine)
//   - Engine 2.0.0, Strategy 1.2.0 -> ERROR (major differs)
func CheckStrategyCompatibility(engineVersion, strategyVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	strategyVersion = strings.TrimPrefix(strategyVersion, "v")

	if engineVersion == "main" || strategyVersion == "main" {
		return nil
	}

	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid engine version '%s'", engineVersion)
	}

	strategySemver, err := semver.NewVersion(strategyVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStrategyConfigError, err, "invalid strategy version '%s'", strategyVersion)
	}

	if engineSemver.Major() != strategySemver.Major() {
		return errors.Newf(errors.ErrCodeStrategyConfigError, "major version mismatch: engine is %d.x.x but strategy requires %d.x.x",
			engineSemver.Major(), strategySemver.Major())
	}

	if engineSemver.Minor() < strategySemver.Minor() {
		return errors.Newf(errors.ErrCodeStrategyConfigError, "strategy requires engine %d.%d.x or newer, engine is %s",
			strategySemver.Major(), strategySemver.Minor(), engineSemver.String())
	}

	return nil
}
