package events

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestStablecoinMintedEvent(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	evt := StablecoinMinted{
		Depositor:  common.HexToAddress("0x01"),
		Asset:      common.HexToAddress("0x02"),
		BondAmount: 1_000_000,
		MintAmount: 1_333_333,
		Fee:        3_999,
		BondPrice:  2_000_000,
		Timestamp:  ts,
	}.Event()
	if evt.Type != TypeStablecoinMinted {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Timestamp != ts.Unix() {
		t.Fatalf("unexpected timestamp: %d", evt.Timestamp)
	}
	if evt.Attributes["mintAmount"] != "1333333" || evt.Attributes["fee"] != "3999" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["depositor"] != common.HexToAddress("0x01").Hex() {
		t.Fatalf("unexpected depositor: %s", evt.Attributes["depositor"])
	}
}

func TestStablecoinCreatedNormalizesSymbol(t *testing.T) {
	evt := StablecoinCreated{Name: " Dollar ", Symbol: " tusd", TargetCurrency: "usd"}.Event()
	if evt.Attributes["symbol"] != "TUSD" || evt.Attributes["targetCurrency"] != "USD" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["name"] != "Dollar" {
		t.Fatalf("unexpected name: %q", evt.Attributes["name"])
	}
	if evt.Timestamp != 0 {
		t.Fatalf("zero time should omit timestamp, got %d", evt.Timestamp)
	}
}

func TestOptionalAttributes(t *testing.T) {
	updated := StablecoinUpdated{}.Event()
	if _, ok := updated.Attributes["name"]; ok {
		t.Fatalf("untouched name must be omitted")
	}
	fee := uint32(25)
	bond := BondConfigUpdated{Enabled: true, CustomFeeBps: &fee}.Event()
	if bond.Attributes["customFeeBps"] != "25" || bond.Attributes["enabled"] != "true" {
		t.Fatalf("unexpected attrs: %+v", bond.Attributes)
	}
	cleared := BondConfigUpdated{}.Event()
	if _, ok := cleared.Attributes["customFeeBps"]; ok {
		t.Fatalf("cleared override must be omitted")
	}
}

func TestStableEventsRender(t *testing.T) {
	all := []Renderer{
		FactoryInitialized{}, FactoryConfigUpdated{}, StablecoinCreated{}, StablecoinUpdated{},
		StablecoinPaused{}, StablecoinResumed{}, StablecoinMinted{}, StablecoinBurned{},
		YieldDistributed{}, BondAdded{}, BondConfigUpdated{}, BondRemoved{},
	}
	seen := make(map[string]bool)
	for _, r := range all {
		evt := r.Event()
		if evt == nil || evt.Type != r.EventType() {
			t.Fatalf("render mismatch for %T", r)
		}
		if seen[evt.Type] {
			t.Fatalf("duplicate event type %s", evt.Type)
		}
		seen[evt.Type] = true
	}
}

func TestBufferAndFanout(t *testing.T) {
	a, b := &Buffer{}, &Buffer{}
	fan := Fanout{a, nil, b}
	fan.Emit(BondAdded{})
	fan.Emit(BondRemoved{})
	if len(a.Events()) != 2 || len(b.Events()) != 2 {
		t.Fatalf("fanout did not reach every buffer")
	}
	if got := a.OfType(TypeBondRemoved); len(got) != 1 {
		t.Fatalf("expected one removal, got %d", len(got))
	}
	NoopEmitter{}.Emit(BondAdded{})
}
