package ledger

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiDecimals is the precision of the chain's smallest unit: 1 ledger unit =
// 10^18 wei.
const WeiDecimals = 18

// ToLedgerUnits converts a wei amount to the decimal ledger display unit.
func ToLedgerUnits(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -WeiDecimals)
}

// ToWei converts a ledger-unit amount to wei. Amounts with sub-wei precision
// are rejected rather than silently truncated.
func ToWei(units decimal.Decimal) (*big.Int, error) {
	shifted := units.Shift(WeiDecimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has sub-wei precision", units.String())
	}
	return shifted.BigInt(), nil
}
