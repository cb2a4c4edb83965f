package call

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/railvoice/kiosk/internal/speech"
	"github.com/railvoice/kiosk/internal/store"
)

// Gate tracks microphone-capture permission. The underlying platform dialog
// is shown at most once per kiosk installation; the persisted outcome is
// authoritative afterwards, until a runtime permission error downgrades it.
type Gate struct {
	mu        sync.Mutex
	store     store.Store
	prompter  speech.PermissionPrompter
	requested bool
	granted   bool
}

// NewGate reads the persisted permission outcome so a prior grant never
// re-prompts after a restart.
func NewGate(ctx context.Context, st store.Store, prompter speech.PermissionPrompter) *Gate {
	g := &Gate{store: st, prompter: prompter}
	rec, ok, err := st.LoadPermission(ctx)
	if err != nil {
		log.Printf("permission: load persisted state failed: %v", err)
		return g
	}
	if ok {
		g.requested = rec.Requested
		g.granted = rec.Granted
	}
	return g
}

func (g *Gate) Granted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.granted
}

func (g *Gate) Requested() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requested
}

// Request returns the cached outcome when the dialog has already been
// shown; otherwise it invokes the platform prompt and persists the result
// synchronously so the next process start observes it.
func (g *Gate) Request(ctx context.Context) bool {
	g.mu.Lock()
	if g.requested {
		granted := g.granted
		g.mu.Unlock()
		return granted
	}
	g.mu.Unlock()

	granted, err := g.prompter.RequestCapture(ctx)
	if err != nil {
		log.Printf("permission: capture prompt failed: %v", err)
		granted = false
	}

	g.mu.Lock()
	g.requested = true
	g.granted = granted
	g.mu.Unlock()

	g.persist(ctx)
	return granted
}

// Downgrade records a runtime permission denial (e.g. the capture engine
// reported not_allowed after a grant).
func (g *Gate) Downgrade(ctx context.Context) {
	g.mu.Lock()
	g.requested = true
	g.granted = false
	g.mu.Unlock()
	g.persist(ctx)
}

func (g *Gate) persist(ctx context.Context) {
	g.mu.Lock()
	rec := store.PermissionRecord{
		Requested: g.requested,
		Granted:   g.granted,
		UpdatedAt: time.Now().UTC(),
	}
	g.mu.Unlock()
	if err := g.store.SavePermission(ctx, rec); err != nil {
		log.Printf("permission: persist failed: %v", err)
	}
}
