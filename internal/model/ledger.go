package model

import "time"

// LedgerEntry is a permanently committed transaction in the ledger store.
// Amounts are stored as non-negative magnitudes; Direction carries the sign.
type LedgerEntry struct {
	Date        time.Time
	CreatedAt   time.Time
	ID          string
	Owner       string
	Description string
	Category    string
	Account     string
	SessionID   string
	Direction   Direction
	Amount      float64
}
