package asset

import (
	"sort"
	"strings"
	"sync"
)

// Entry is an allow-listed asset with its presentation metadata.
type Entry struct {
	Ref      Ref
	Symbol   string
	Decimals int32
}

// AllowList is the set of assets games may escrow. The native coin is
// always allowed.
type AllowList struct {
	mu      sync.RWMutex
	native  Entry
	entries map[Ref]Entry
}

// NewAllowList creates an allow-list whose native coin renders with the
// given symbol and decimals.
func NewAllowList(nativeSymbol string, nativeDecimals int32) *AllowList {
	return &AllowList{
		native:  Entry{Ref: Native(), Symbol: nativeSymbol, Decimals: nativeDecimals},
		entries: make(map[Ref]Entry),
	}
}

// Allow adds or replaces a token entry. Native entries are ignored.
func (l *AllowList) Allow(e Entry) {
	if e.Ref.IsNative() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.Ref] = e
}

// Revoke removes a token. Games already escrowing it are unaffected.
func (l *AllowList) Revoke(ref Ref) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[ref]; !ok {
		return false
	}
	delete(l.entries, ref)
	return true
}

// IsAllowed reports whether games may be created in ref.
func (l *AllowList) IsAllowed(ref Ref) bool {
	if ref.IsNative() {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[ref]
	return ok
}

// Lookup returns the entry for ref. Revoked tokens are not found.
func (l *AllowList) Lookup(ref Ref) (Entry, bool) {
	if ref.IsNative() {
		return l.native, true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[ref]
	return e, ok
}

// BySymbol finds an entry by case-insensitive symbol, native included.
func (l *AllowList) BySymbol(symbol string) (Entry, bool) {
	if strings.EqualFold(symbol, l.native.Symbol) {
		return l.native, true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if strings.EqualFold(e.Symbol, symbol) {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the native entry followed by tokens sorted by symbol.
func (l *AllowList) Entries() []Entry {
	l.mu.RLock()
	tokens := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		tokens = append(tokens, e)
	}
	l.mu.RUnlock()

	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	return append([]Entry{l.native}, tokens...)
}
