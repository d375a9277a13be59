package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unithub/unithub-ble/pkg/connector"
)

func TestScanHonoursFilterAndContext(t *testing.T) {
	other := &Peripheral{ID: "BB", Name: "speaker", Advertised: []string{"110B"}}
	tr := New(UnitHub("AA", "UH_SN1"), other)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	var seen []string
	if err := tr.Scan(ctx, []string{"180a"}, func(a connector.Advertisement) { seen = append(seen, a.DeviceID) }); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "AA" {
		t.Errorf("unexpected advertisements %v", seen)
	}
}

func TestConnectDiscoverReadWrite(t *testing.T) {
	tr := New(UnitHub("AA", "UH_SN1"))
	ctx := context.Background()
	h, err := tr.Connect(ctx, "AA", connector.ConnectOptions{PreferredMTU: 517})
	if err != nil {
		t.Fatal(err)
	}
	if h.MTU() != 247 {
		t.Errorf("MTU not capped by peripheral: %d", h.MTU())
	}
	services, err := tr.Discover(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 7 {
		t.Errorf("expected 7 services, got %d", len(services))
	}

	if err := tr.WriteCharacteristic(ctx, h, "1810", "2A56", []byte{0x3C, 0x00}, true); err != nil {
		t.Fatal(err)
	}
	v, err := tr.ReadCharacteristic(ctx, h, "1810", "2a56")
	if err != nil || v[0] != 0x3C {
		t.Fatalf("write not visible: %x %v", v, err)
	}
	if _, err := tr.ReadCharacteristic(ctx, h, "1812", "2A63"); err == nil {
		t.Error("write-only characteristic was readable")
	}

	tr.ReadErr[Key("1810", "2A57")] = ErrATT
	if _, err := tr.ReadCharacteristic(ctx, h, "1810", "2A57"); !errors.Is(err, ErrATT) {
		t.Errorf("injected failure not returned: %v", err)
	}

	if err := tr.Disconnect(ctx, h); err != nil {
		t.Fatal(err)
	}
	if tr.LiveConnections() != 0 {
		t.Error("link still live after disconnect")
	}
	if _, err := tr.ReadCharacteristic(ctx, h, "1810", "2A56"); err == nil {
		t.Error("read on a closed link succeeded")
	}
}

func TestConnectTimeout(t *testing.T) {
	tr := New(UnitHub("AA", "UH_SN1"))
	tr.ConnectDelay = time.Second
	start := time.Now()
	_, err := tr.Connect(context.Background(), "AA", connector.ConnectOptions{Timeout: 10 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("connect did not honour the timeout")
	}
}
