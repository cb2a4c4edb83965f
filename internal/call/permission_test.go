package call

import (
	"context"
	"errors"
	"testing"

	"github.com/railvoice/kiosk/internal/speech"
	"github.com/railvoice/kiosk/internal/store"
)

func TestGatePromptsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	provider := speech.NewMockProvider()
	g := NewGate(ctx, st, provider)

	if g.Requested() {
		t.Fatalf("Requested() = true on fresh store")
	}
	for i := 0; i < 3; i++ {
		if !g.Request(ctx) {
			t.Fatalf("Request() #%d = false, want granted", i+1)
		}
	}
	if n := provider.PromptCount(); n != 1 {
		t.Fatalf("prompt count = %d, want 1", n)
	}

	// A new gate over the same store never prompts again.
	g2 := NewGate(ctx, st, provider)
	if !g2.Request(ctx) {
		t.Fatalf("Request() after reload = false, want cached grant")
	}
	if n := provider.PromptCount(); n != 1 {
		t.Fatalf("prompt count after reload = %d, want 1", n)
	}
}

func TestGateDenialIsCached(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	provider := speech.NewMockProvider()
	provider.SetPermission(false, nil)
	g := NewGate(ctx, st, provider)

	if g.Request(ctx) {
		t.Fatalf("Request() = true, want denied")
	}
	provider.SetPermission(true, nil)
	if g.Request(ctx) {
		t.Fatalf("Request() = true after denial, want cached denial")
	}
	if n := provider.PromptCount(); n != 1 {
		t.Fatalf("prompt count = %d, want 1", n)
	}
}

func TestGatePromptErrorCountsAsDenial(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	provider := speech.NewMockProvider()
	provider.SetPermission(true, errors.New("dialog helper crashed"))
	g := NewGate(ctx, st, provider)

	if g.Request(ctx) {
		t.Fatalf("Request() = true, want denial on prompt failure")
	}
	if !g.Requested() || g.Granted() {
		t.Fatalf("gate state = requested=%v granted=%v, want requested denial", g.Requested(), g.Granted())
	}
}

func TestGateDowngradePersists(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	provider := speech.NewMockProvider()
	g := NewGate(ctx, st, provider)

	if !g.Request(ctx) {
		t.Fatalf("Request() = false, want granted")
	}
	g.Downgrade(ctx)

	if g.Granted() {
		t.Fatalf("Granted() = true after downgrade")
	}
	rec, ok, err := st.LoadPermission(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadPermission() = ok=%v err=%v", ok, err)
	}
	if !rec.Requested || rec.Granted {
		t.Fatalf("persisted record = %+v, want requested denial", rec)
	}
}
