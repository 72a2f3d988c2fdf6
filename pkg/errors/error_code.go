package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Input errors (100-199): configuration and order parameters
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidTakeProfit    ErrorCode = 103
	ErrCodeInvalidStopLoss      ErrorCode = 104
	ErrCodeInsufficientData     ErrorCode = 105
	ErrCodeInvalidPeriod        ErrorCode = 106
	ErrCodeMissingParameter     ErrorCode = 107
	ErrCodeInvalidCash          ErrorCode = 108
	ErrCodeInvalidCommission    ErrorCode = 109
	ErrCodeInvalidMargin        ErrorCode = 110

	// Bar series errors (200-299)
	ErrCodeInvalidBarSeries      ErrorCode = 200
	ErrCodeEmptySeries           ErrorCode = 201
	ErrCodeMissingColumn         ErrorCode = 202
	ErrCodeNonMonotonicTime      ErrorCode = 203
	ErrCodeDataSourceUnavailable ErrorCode = 204
	ErrCodeQueryFailed           ErrorCode = 205
	ErrCodeUnsupportedFormat     ErrorCode = 206

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301
	ErrCodeIndicatorCalculation   ErrorCode = 302
	ErrCodeIndicatorShape         ErrorCode = 303
	ErrCodeIndicatorRegistration  ErrorCode = 304

	// Strategy errors (400-499)
	ErrCodeStrategyNotFound     ErrorCode = 400
	ErrCodeStrategyConfigError  ErrorCode = 401
	ErrCodeStrategyRuntimeError ErrorCode = 402

	// Backtest errors (600-699)
	ErrCodeBacktestStateNil     ErrorCode = 600
	ErrCodeBacktestWriteFailed  ErrorCode = 601
	ErrCodeBacktestNoStrategy   ErrorCode = 602
	ErrCodeBacktestNoDatasource ErrorCode = 603

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)

// IsInputCode reports whether the code belongs to the input error categories
// (configuration, parameters and bar series).
func IsInputCode(code ErrorCode) bool {
	return code >= 100 && code < 300
}
