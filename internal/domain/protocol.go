package domain

import "github.com/shopspring/decimal"

// Protocol is the closed set of yield venues a deposit can target.
type Protocol string

const (
	ProtocolUniswapV3  Protocol = "Uniswap V3"
	ProtocolAaveV3     Protocol = "Aave V3"
	ProtocolLoyaltyUSD Protocol = "LoyaltyUSD"
	ProtocolLoyaltyX   Protocol = "LoyaltyX Protocol"
	// ProtocolDefault is the explicit fallback for labels the table
	// does not know.
	ProtocolDefault Protocol = "Default"
)

// ProtocolTerms is the fixed (apy, exchangeRate, asset) triple a protocol
// trades at. APY is in percent units per year.
type ProtocolTerms struct {
	APY          decimal.Decimal
	ExchangeRate decimal.Decimal
	Asset        string
}

// Terms returns the protocol's fixed terms. Unknown variants get the
// default terms.
func (p Protocol) Terms() ProtocolTerms {
	switch p {
	case ProtocolUniswapV3:
		return ProtocolTerms{APY: decimal.NewFromFloat(45.2), ExchangeRate: decimal.NewFromFloat(0.01), Asset: "USDC"}
	case ProtocolAaveV3:
		return ProtocolTerms{APY: decimal.NewFromFloat(8.5), ExchangeRate: decimal.NewFromFloat(0.01), Asset: "aUSDC"}
	case ProtocolLoyaltyUSD:
		return ProtocolTerms{APY: decimal.Zero, ExchangeRate: decimal.NewFromFloat(0.01), Asset: "LUSD"}
	case ProtocolLoyaltyX:
		return ProtocolTerms{APY: decimal.NewFromInt(125), ExchangeRate: decimal.NewFromInt(1), Asset: "Points"}
	default:
		return ProtocolTerms{APY: decimal.NewFromInt(10), ExchangeRate: decimal.NewFromFloat(0.01), Asset: "USDC"}
	}
}

// IsValid checks if the Protocol value is one of the known variants.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolUniswapV3, ProtocolAaveV3, ProtocolLoyaltyUSD, ProtocolLoyaltyX, ProtocolDefault:
		return true
	}
	return false
}

// String returns the display label.
func (p Protocol) String() string {
	return string(p)
}

// ParseProtocol maps a display label onto the closed enumeration.
// Unknown labels resolve to ProtocolDefault rather than being carried
// through as arbitrary strings.
func ParseProtocol(s string) Protocol {
	p := Protocol(s)
	if p.IsValid() {
		return p
	}
	return ProtocolDefault
}
