// Package identity merges dependency occurrences from many repositories into
// canonical per-package records.
package identity

import (
	"strings"
)

// Strategy rewrites a raw package name into its canonical form.
type Strategy func(name string) string

var (
	// Fold lower-cases the name and treats '_' and '-' as equivalent.
	Fold Strategy = func(name string) string {
		return strings.ReplaceAll(strings.ToLower(name), "_", "-")
	}

	// Verbatim keeps the name as declared.
	Verbatim Strategy = func(name string) string { return name }

	// Lower lower-cases the name.
	Lower Strategy = strings.ToLower
)

// strategies is keyed by lower-cased ecosystem. Ecosystems not listed use Lower.
var strategies = map[string]Strategy{
	"pypi":  Fold,     // PEP 503: case-insensitive, '_' == '-'
	"maven": Verbatim, // group:artifact is already canonical
	"npm":   Verbatim, // scoped names are case-sensitive
}

// Normalize returns the canonical name of a package within its ecosystem.
func Normalize(ecosystem, name string) string {
	return StrategyFor(ecosystem)(name)
}

// StrategyFor returns the normalization strategy used for an ecosystem.
func StrategyFor(ecosystem string) Strategy {
	if s, ok := strategies[strings.ToLower(ecosystem)]; ok {
		return s
	}
	return Lower
}

// Key is the canonical identity of a package.
type Key struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
}

// KeyFor builds the canonical key for a raw (ecosystem, name) pair.
func KeyFor(ecosystem, name string) Key {
	return Key{Ecosystem: ecosystem, Name: Normalize(ecosystem, name)}
}

func (k Key) String() string {
	return k.Ecosystem + ":" + k.Name
}
