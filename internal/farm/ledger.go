package farm

import "github.com/holiman/uint256"

// Transfer moves Amount from one vault to another.
type Transfer struct {
	From   VaultID
	To     VaultID
	Amount *uint256.Int
}

// Ledger is the token custody collaborator. Move applies every transfer or
// none of them and fails when a source vault cannot cover its debits.
type Ledger interface {
	Balance(vault VaultID) (*uint256.Int, error)
	Move(transfers ...Transfer) error
}

// transfers collects the value movements of one operation so they can be
// handed to the Ledger as a single batch after every check has passed.
type transfers []Transfer

func (ts *transfers) add(from, to VaultID, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	*ts = append(*ts, Transfer{From: from, To: to, Amount: new(uint256.Int).Set(amount)})
}
