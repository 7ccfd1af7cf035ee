// Package domain defines core data structures used throughout the trading simulator.
package domain

import "fmt"

// Pair binds an exchange pair id to the canonical ticker symbol traded under it.
type Pair struct {
	// ID exchange-specific pair identifier, e.g. "XXBTZUSD".
	ID string
	// Symbol canonical ticker, e.g. "BTC".
	Symbol string
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s (%s)", p.Symbol, p.ID)
}

// Universe is the ordered set of tradable pairs, fixed once at discovery.
type Universe []Pair

// PairIDs returns the pair ids in universe order.
func (u Universe) PairIDs() []string {
	ids := make([]string, 0, len(u))
	for _, p := range u {
		ids = append(ids, p.ID)
	}
	return ids
}

// SymbolFor resolves the canonical symbol for an exchange pair id.
func (u Universe) SymbolFor(pairID string) (string, bool) {
	for _, p := range u {
		if p.ID == pairID {
			return p.Symbol, true
		}
	}
	return "", false
}

// PairIDFor resolves the exchange pair id for a canonical symbol.
func (u Universe) PairIDFor(symbol string) (string, bool) {
	for _, p := range u {
		if p.Symbol == symbol {
			return p.ID, true
		}
	}
	return "", false
}
