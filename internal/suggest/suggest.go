// Package suggest exposes the autocomplete entry point. The actual
// suggestion engine is a pluggable strategy supplied by the host process.
package suggest

import (
	"sync"
)

// StrWithPos is a command string with the cursor position within it.
type StrWithPos struct {
	Str string
	Pos int
}

// Provider computes suggestions for a command string. Providers are
// supplied by the embedding process; the core ships none.
type Provider interface {
	Suggest(cmdStr StrWithPos) error
}

var providerLock = &sync.Mutex{}
var provider Provider

// SetProvider installs the suggestion strategy.
func SetProvider(p Provider) {
	providerLock.Lock()
	defer providerLock.Unlock()
	provider = p
}

// GetSuggestions takes a StrWithPos and computes autocomplete suggestions
// for the command. A missing provider or an empty string is a no-op.
func GetSuggestions(cmdStr StrWithPos) error {
	if cmdStr.Str == "" {
		return nil
	}
	providerLock.Lock()
	p := provider
	providerLock.Unlock()
	if p == nil {
		return nil
	}
	return p.Suggest(cmdStr)
}
