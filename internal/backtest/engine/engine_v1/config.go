package engine

import (
	"encoding/json"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SLTPResolution decides which exit wins when stop-loss and take-profit are both hit inside one bar.
type SLTPResolution string

const (
	// SLTPResolutionPessimistic fills the stop-loss first.
	SLTPResolutionPessimistic SLTPResolution = "pessimistic"
	// SLTPResolutionOptimistic fills the take-profit first.
	SLTPResolutionOptimistic SLTPResolution = "optimistic"
)

var AllSLTPResolutions = []any{
	SLTPResolutionPessimistic,
	SLTPResolutionOptimistic,
}

type BacktestEngineV1Config struct {
	InitialCapital  float64                    `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting cash for the backtest,exclusiveMinimum=0"`
	Commission      float64                    `yaml:"commission" json:"commission" validate:"gte=0,lt=1" jsonschema:"title=Commission,description=Per-side proportion of notional charged on every fill,minimum=0,exclusiveMaximum=1"`
	Broker          commission_fee.Broker      `yaml:"broker" json:"broker" validate:"oneof=proportional interactive_broker zero_commission" jsonschema:"title=Broker,description=The broker to use for commission calculations"`
	Margin          float64                    `yaml:"margin" json:"margin" validate:"gt=0,lte=1" jsonschema:"title=Margin,description=Fraction of notional required as cash to open a position,exclusiveMinimum=0,maximum=1"`
	ExclusiveOrders bool                       `yaml:"exclusive_orders" json:"exclusive_orders" jsonschema:"title=Exclusive Orders,description=A new order cancels pending orders and closes opposing trades"`
	TradeOnClose    bool                       `yaml:"trade_on_close" json:"trade_on_close" jsonschema:"title=Trade On Close,description=Fill market orders at the current bar close instead of the next bar open"`
	SLTPResolution  SLTPResolution             `yaml:"sl_tp_resolution" json:"sl_tp_resolution" validate:"oneof=pessimistic optimistic" jsonschema:"title=SL/TP Resolution,description=Which exit fills first when stop-loss and take-profit are hit in the same bar"`
	PeriodsPerYear  float64                    `yaml:"periods_per_year" json:"periods_per_year" validate:"gte=0" jsonschema:"title=Periods Per Year,description=Bars per year used to annualise statistics. Zero derives it from the bar spacing,minimum=0"`
	StartTime       optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start time for the backtest period"`
	EndTime         optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end time for the backtest period"`
}

// configDocument is the YAML layout of BacktestEngineV1Config. Optional times are plain timestamps.
type configDocument struct {
	InitialCapital  float64               `yaml:"initial_capital"`
	Commission      float64               `yaml:"commission"`
	Broker          commission_fee.Broker `yaml:"broker"`
	Margin          float64               `yaml:"margin"`
	ExclusiveOrders bool                  `yaml:"exclusive_orders"`
	TradeOnClose    bool                  `yaml:"trade_on_close"`
	SLTPResolution  SLTPResolution        `yaml:"sl_tp_resolution"`
	PeriodsPerYear  float64               `yaml:"periods_per_year"`
	StartTime       *time.Time            `yaml:"start_time,omitempty"`
	EndTime         *time.Time            `yaml:"end_time,omitempty"`
}

// MarshalYAML implements custom marshaling for BacktestEngineV1Config. Unset times are omitted.
func (c BacktestEngineV1Config) MarshalYAML() (any, error) {
	config := configDocument{
		InitialCapital:  c.InitialCapital,
		Commission:      c.Commission,
		Broker:          c.Broker,
		Margin:          c.Margin,
		ExclusiveOrders: c.ExclusiveOrders,
		TradeOnClose:    c.TradeOnClose,
		SLTPResolution:  c.SLTPResolution,
		PeriodsPerYear:  c.PeriodsPerYear,
		StartTime:       nil,
		EndTime:         nil,
	}

	if c.StartTime.IsSome() {
		start := c.StartTime.Unwrap()
		config.StartTime = &start
	}

	if c.EndTime.IsSome() {
		end := c.EndTime.Unwrap()
		config.EndTime = &end
	}

	return config, nil
}

// UnmarshalYAML implements custom unmarshaling for BacktestEngineV1Config.
// Keys missing from the document keep the receiver's current values.
func (c *BacktestEngineV1Config) UnmarshalYAML(value *yaml.Node) error {
	config := configDocument{
		InitialCapital:  c.InitialCapital,
		Commission:      c.Commission,
		Broker:          c.Broker,
		Margin:          c.Margin,
		ExclusiveOrders: c.ExclusiveOrders,
		TradeOnClose:    c.TradeOnClose,
		SLTPResolution:  c.SLTPResolution,
		PeriodsPerYear:  c.PeriodsPerYear,
		StartTime:       nil,
		EndTime:         nil,
	}

	if err := value.Decode(&config); err != nil {
		return err
	}

	c.InitialCapital = config.InitialCapital
	c.Commission = config.Commission
	c.Broker = config.Broker
	c.Margin = config.Margin
	c.ExclusiveOrders = config.ExclusiveOrders
	c.TradeOnClose = config.TradeOnClose
	c.SLTPResolution = config.SLTPResolution
	c.PeriodsPerYear = config.PeriodsPerYear

	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// Validate checks every option range. All failures are input errors.
func (c *BacktestEngineV1Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			field := fieldErrors[0]

			code := errors.ErrCodeInvalidConfiguration

			switch field.StructField() {
			case "InitialCapital":
				code = errors.ErrCodeInvalidCash
			case "Commission":
				code = errors.ErrCodeInvalidCommission
			case "Margin":
				code = errors.ErrCodeInvalidMargin
			}

			return errors.Wrapf(code, err, "invalid %s: %v", field.Field(), field.Value())
		}

		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "end_time is before start_time")
	}

	return nil
}

// ParseConfig parses a YAML configuration on top of the defaults and validates it.
func ParseConfig(data []byte) (BacktestEngineV1Config, error) {
	config := EmptyConfig()

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse configuration", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (BacktestEngineV1Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EmptyConfig(), errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read configuration %s", path)
	}

	return ParseConfig(data)
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			if strings.Contains(t.String(), "commission_fee.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllBrokers,
				}
			}

			if strings.Contains(t.String(), "SLTPResolution") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: AllSLTPResolutions,
				}
			}

			return nil
		},
	}

	// Generate schema from BacktestEngineV1Config struct
	schema := reflector.Reflect(c)

	// Set schema metadata
	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// TestConfig returns a valid configuration with 10000 starting cash and no commission.
func TestConfig() BacktestEngineV1Config {
	config := EmptyConfig()
	config.InitialCapital = 10000
	config.Broker = commission_fee.BrokerZero

	return config
}

// EmptyConfig returns a BacktestEngineV1Config with default values
func EmptyConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		InitialCapital:  0,
		Commission:      0,
		Broker:          commission_fee.BrokerProportional,
		Margin:          1,
		ExclusiveOrders: false,
		TradeOnClose:    false,
		SLTPResolution:  SLTPResolutionPessimistic,
		PeriodsPerYear:  0,
		StartTime:       optional.None[time.Time](),
		EndTime:         optional.None[time.Time](),
	}
}
