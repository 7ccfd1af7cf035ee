package domain

import "time"

// EquitySnapshot account balance state written to the journal after every
// committed trade or reset. Decimal fields are serialized as strings.
type EquitySnapshot struct {
	Timestamp time.Time `json:"ts"`
	Balance   string    `json:"balance"`
	Symbol    string    `json:"symbol,omitempty"`
	Side      string    `json:"side,omitempty"`
	Total     string    `json:"total,omitempty"`
}

// EquitySnapshotRecord bundles a snapshot with its journal index.
type EquitySnapshotRecord struct {
	Index    uint64
	Snapshot EquitySnapshot
}
