// Package asset maps on-chain token contracts to the metadata needed
// to normalize pool reserves: symbol and decimals. Identity is chain
// plus contract address, never the symbol.
package asset

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenID uniquely identifies a token by chain and contract address.
type TokenID struct {
	ChainID uint64
	Address common.Address
}

// Token is one known token's metadata.
type Token struct {
	ID       TokenID
	Symbol   string
	Name     string
	Decimals uint8
}

// NewToken creates a token. Decimals above 30 indicate a wiring bug,
// not a real contract.
func NewToken(chainID uint64, address common.Address, symbol, name string, decimals uint8) Token {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 30 {
		panic(fmt.Sprintf("asset: %s has suspicious decimals %d", symbol, decimals))
	}
	return Token{
		ID:       TokenID{ChainID: chainID, Address: address},
		Symbol:   symbol,
		Name:     name,
		Decimals: decimals,
	}
}

// Registry is a thread-safe token registry.
type Registry struct {
	mu   sync.RWMutex
	byID map[TokenID]Token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[TokenID]Token)}
}

// Register adds a token. Registering the same contract twice is a
// programming error.
func (r *Registry) Register(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[t.ID]; exists {
		panic(fmt.Sprintf("asset: %s on chain %d already registered", t.Symbol, t.ID.ChainID))
	}
	r.byID[t.ID] = t
}

// Token looks up a token by chain and contract address.
func (r *Registry) Token(chainID uint64, address common.Address) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[TokenID{ChainID: chainID, Address: address}]
	return t, ok
}

// Count returns the number of registered tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
