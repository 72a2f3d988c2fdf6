package runtime

import (
	"bytes"
	stderrors "errors"
	"io"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ApplyParams binds parameters onto a strategy through its yaml tags.
// Unknown keys are rejected so that a typo does not silently run with defaults.
func ApplyParams(strategy Strategy, params map[string]any) error {
	if len(params) == 0 {
		return nil
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to encode strategy parameters", err)
	}

	return ApplyParamsYAML(strategy, data)
}

// ApplyParamsYAML binds a YAML mapping onto a strategy through its yaml tags.
func ApplyParamsYAML(strategy Strategy, data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(strategy)
	if stderrors.Is(err, io.EOF) {
		return nil
	}

	if err != nil {
		return errors.Wrapf(errors.ErrCodeStrategyConfigError, err, "invalid parameters for strategy %s", strategy.Name())
	}

	return nil
}

// ParseParams parses a YAML mapping of strategy parameters.
func ParseParams(data []byte) (map[string]any, error) {
	params := map[string]any{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse strategy parameters", err)
	}

	return params, nil
}
