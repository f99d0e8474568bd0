package symbols

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := New([]Mapping{
		{Logical: "ETH_USDC_PERP", DataSource: "ETH_USDC_PERP", Execution: "ETH-USDT-SWAP"},
		{Logical: "BTC_USDC_PERP", DataSource: "BTC_USDC_PERP", Execution: "BTC-USDT-SWAP"},
		{Logical: "SOL_USDC_PERP"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestLookupBothVenues(t *testing.T) {
	tr := testTranslator(t)

	ds, err := tr.DataSource("ETH_USDC_PERP")
	if err != nil || ds != "ETH_USDC_PERP" {
		t.Fatalf("DataSource = %q, %v", ds, err)
	}
	ex, err := tr.Execution("ETH_USDC_PERP")
	if err != nil || ex != "ETH-USDT-SWAP" {
		t.Fatalf("Execution = %q, %v", ex, err)
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	tr := testTranslator(t)
	ex, err := tr.Execution("eth_usdc_perp")
	if err != nil || ex != "ETH-USDT-SWAP" {
		t.Fatalf("Execution = %q, %v", ex, err)
	}
	if !tr.Known("btc_usdc_perp") {
		t.Error("Known should be case-insensitive")
	}
}

func TestUnmappedSymbolTypedError(t *testing.T) {
	tr := testTranslator(t)
	_, err := tr.Execution("DOGE_USDC_PERP")
	var unmapped *ErrUnmapped
	if !errors.As(err, &unmapped) {
		t.Fatalf("expected *ErrUnmapped, got %v", err)
	}
	if unmapped.Symbol != "DOGE_USDC_PERP" {
		t.Errorf("error carries %q, want DOGE_USDC_PERP", unmapped.Symbol)
	}
	if tr.Known("DOGE_USDC_PERP") {
		t.Error("Known should report false for unmapped symbol")
	}
}

func TestMissingVenueIDsDefaultToLogical(t *testing.T) {
	tr := testTranslator(t)
	ds, err := tr.DataSource("SOL_USDC_PERP")
	if err != nil || ds != "SOL_USDC_PERP" {
		t.Fatalf("DataSource = %q, %v", ds, err)
	}
	ex, err := tr.Execution("SOL_USDC_PERP")
	if err != nil || ex != "SOL_USDC_PERP" {
		t.Fatalf("Execution = %q, %v", ex, err)
	}
}

func TestReverseLookups(t *testing.T) {
	tr := testTranslator(t)
	if got := tr.FromExecution("ETH-USDT-SWAP"); got != "ETH_USDC_PERP" {
		t.Errorf("FromExecution = %q", got)
	}
	if got := tr.FromDataSource("BTC_USDC_PERP"); got != "BTC_USDC_PERP" {
		t.Errorf("FromDataSource = %q", got)
	}
	// Unknown identifiers pass through unchanged.
	if got := tr.FromExecution("XRP-USDT-SWAP"); got != "XRP-USDT-SWAP" {
		t.Errorf("FromExecution pass-through = %q", got)
	}
}

func TestNewRejectsBadMappings(t *testing.T) {
	if _, err := New([]Mapping{{Logical: ""}}); err == nil {
		t.Error("empty logical symbol should fail")
	}
	if _, err := New([]Mapping{{Logical: "ETH_USDC_PERP"}, {Logical: "eth_usdc_perp"}}); err == nil {
		t.Error("duplicate logical symbol should fail")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	content := `symbols:
  - logical: ETH_USDC_PERP
    data_source: ETH_USDC_PERP
    execution: ETH-USDT-SWAP
  - logical: BTC_USDC_PERP
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tr, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	ex, err := tr.Execution("ETH_USDC_PERP")
	if err != nil || ex != "ETH-USDT-SWAP" {
		t.Fatalf("Execution = %q, %v", ex, err)
	}
	if !tr.Known("BTC_USDC_PERP") {
		t.Error("BTC_USDC_PERP should be known")
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("symbols: [not closed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("malformed yaml should fail")
	}
}

func TestNormalizePerp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ETH-USDT-SWAP", "ETH_USDT_PERP"},
		{"eth/usdt", "ETH_USDT_PERP"},
		{"ETHUSDT", "ETH_USDT_PERP"},
		{"BTC_USDC_PERP", "BTC_USDC_PERP"},
		{"SOLUSD", "SOL_USD_PERP"},
		{"garbage", "garbage"},
		{"USDT", "USDT"},
	}
	for _, tt := range tests {
		if got := NormalizePerp(tt.in); got != tt.want {
			t.Errorf("NormalizePerp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
