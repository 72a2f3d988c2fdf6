package commission_fee

type CommissionFee interface {
	// Calculate the commission fee for one side of a fill and returns the fee in quote currency
	Calculate(price float64, quantity float64) float64
}

type Broker string

const (
	BrokerProportional      Broker = "proportional"
	BrokerInteractiveBroker Broker = "interactive_broker"
	BrokerZero              Broker = "zero_commission"
)

var AllBrokers = []any{
	BrokerProportional,
	BrokerInteractiveBroker,
	BrokerZero,
}

// GetCommissionFeeHandler returns the commission model for the broker.
// rate is only used by the proportional model.
func GetCommissionFeeHandler(broker Broker, rate float64) CommissionFee {
	switch broker {
	case BrokerInteractiveBroker:
		return NewInteractiveBrokerCommissionFee()
	case BrokerZero:
		return NewZeroCommissionFee()
	default:
		return NewProportionalCommissionFee(rate)
	}
}
