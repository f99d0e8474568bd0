// Package symbols resolves the identifier conventions for one logical
// instrument across the market-data source and the execution venue, which may
// quote the same underlying differently (e.g. the data source's
// ETH_USDC_PERP corresponds to the venue's ETH-USDT-SWAP).
package symbols

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Mapping associates one logical symbol with its venue-specific identifiers.
type Mapping struct {
	Logical    string `yaml:"logical"`
	DataSource string `yaml:"data_source"`
	Execution  string `yaml:"execution"`
}

// ErrUnmapped reports a symbol with no entry in the translation table. The
// caller stops monitoring for that symbol only.
type ErrUnmapped struct {
	Symbol string
}

func (e *ErrUnmapped) Error() string {
	return fmt.Sprintf("symbols: %q has no mapping", e.Symbol)
}

// Translator is a pure, read-only lookup built once from configuration.
type Translator struct {
	mu          sync.RWMutex
	byLogical   map[string]Mapping
	byData      map[string]string // data-source symbol -> logical
	byExecution map[string]string // execution symbol -> logical
}

type mappingFile struct {
	Symbols []Mapping `yaml:"symbols"`
}

// LoadFile reads a YAML mapping table.
func LoadFile(path string) (*Translator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("symbols: parse %s: %w", path, err)
	}
	return New(file.Symbols)
}

// New builds a translator from mapping entries. Entries missing a venue
// identifier default both venues to the logical symbol.
func New(mappings []Mapping) (*Translator, error) {
	t := &Translator{
		byLogical:   make(map[string]Mapping, len(mappings)),
		byData:      make(map[string]string, len(mappings)),
		byExecution: make(map[string]string, len(mappings)),
	}
	for _, m := range mappings {
		logical := strings.ToUpper(strings.TrimSpace(m.Logical))
		if logical == "" {
			return nil, fmt.Errorf("symbols: mapping with empty logical symbol")
		}
		if m.DataSource == "" {
			m.DataSource = logical
		}
		if m.Execution == "" {
			m.Execution = logical
		}
		if _, dup := t.byLogical[logical]; dup {
			return nil, fmt.Errorf("symbols: duplicate mapping for %s", logical)
		}
		m.Logical = logical
		t.byLogical[logical] = m
		t.byData[m.DataSource] = logical
		t.byExecution[m.Execution] = logical
	}
	return t, nil
}

// DataSource returns the market-data identifier for a logical symbol.
func (t *Translator) DataSource(logical string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byLogical[strings.ToUpper(logical)]
	if !ok {
		return "", &ErrUnmapped{Symbol: logical}
	}
	return m.DataSource, nil
}

// Execution returns the order-venue identifier for a logical symbol.
func (t *Translator) Execution(logical string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byLogical[strings.ToUpper(logical)]
	if !ok {
		return "", &ErrUnmapped{Symbol: logical}
	}
	return m.Execution, nil
}

// FromDataSource maps a data-source identifier back to the logical symbol,
// falling back to the input when no mapping exists (pass-through venues).
func (t *Translator) FromDataSource(dataSymbol string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if logical, ok := t.byData[dataSymbol]; ok {
		return logical
	}
	return dataSymbol
}

// FromExecution maps a venue identifier back to the logical symbol,
// falling back to the input when no mapping exists.
func (t *Translator) FromExecution(execSymbol string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if logical, ok := t.byExecution[execSymbol]; ok {
		return logical
	}
	return execSymbol
}

// Known reports whether a logical symbol has a mapping.
func (t *Translator) Known(logical string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byLogical[strings.ToUpper(logical)]
	return ok
}

// NormalizePerp canonicalizes the common perpetual-contract spellings into
// BASE_QUOTE_PERP form: "ETH-USDT-SWAP", "eth/usdt" and "ETHUSDT" all become
// ETH_USDT_PERP. Unrecognizable input is returned unchanged.
func NormalizePerp(symbol string) string {
	clean := strings.ToUpper(symbol)
	for _, sep := range []string{"-", "_", "/"} {
		clean = strings.ReplaceAll(clean, sep, "")
	}
	clean = strings.TrimSuffix(clean, "SWAP")
	clean = strings.TrimSuffix(clean, "PERP")

	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if base, ok := strings.CutSuffix(clean, quote); ok && base != "" {
			return base + "_" + quote + "_PERP"
		}
	}
	return symbol
}
