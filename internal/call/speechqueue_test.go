package call

import (
	"context"
	"testing"
	"time"

	"github.com/railvoice/kiosk/internal/ivr"
	"github.com/railvoice/kiosk/internal/speech"
	"github.com/railvoice/kiosk/internal/store"
)

func TestPickVoicePreferenceLadder(t *testing.T) {
	natural := speech.Voice{ID: "nat", Lang: "en-US", Natural: true}
	female := speech.Voice{ID: "fem", Lang: "en-GB", Gender: "female"}
	indian := speech.Voice{ID: "ind", Lang: "en-IN"}
	plain := speech.Voice{ID: "any", Lang: "en-AU"}
	hindi := speech.Voice{ID: "hin", Lang: "hi-IN", Natural: true, Gender: "female"}

	tests := []struct {
		name   string
		voices []speech.Voice
		want   string
	}{
		{"natural wins", []speech.Voice{plain, indian, female, natural}, "nat"},
		{"female next", []speech.Voice{plain, indian, female}, "fem"},
		{"locale next", []speech.Voice{plain, indian}, "ind"},
		{"any english last", []speech.Voice{hindi, plain}, "any"},
		{"non-english ignored", []speech.Voice{hindi}, ""},
		{"empty inventory", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickVoice(tt.voices)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("pickVoice() = %q, want nil", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Fatalf("pickVoice() = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestSpeechQueuePlaysInOrder(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.c.StartCall(ctx); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	waitFor(t, time.Second, "welcome playback", func() bool {
		return len(rig.provider.Spoken()) == 1
	})

	rig.c.do(func() {
		rig.c.queue.enqueue("first queued")
		rig.c.queue.enqueue("second queued")
		rig.c.queue.enqueue("   ") // blank input is dropped, not queued
	})

	speaking, _, pending, err := rig.c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !speaking || pending != 2 {
		t.Fatalf("status = speaking=%v pending=%d, want speaking with 2 pending", speaking, pending)
	}

	// Playbacks complete one at a time and the queue drains strictly FIFO.
	if !rig.provider.FinishPlayback(nil) {
		t.Fatalf("FinishPlayback() found no open playback")
	}
	waitFor(t, time.Second, "first queued playback", func() bool {
		spoken := rig.provider.Spoken()
		return len(spoken) == 2 && spoken[1] == "first queued"
	})
	if !rig.provider.FinishPlayback(nil) {
		t.Fatalf("FinishPlayback() found no open playback")
	}
	waitFor(t, time.Second, "second queued playback", func() bool {
		spoken := rig.provider.Spoken()
		return len(spoken) == 3 && spoken[2] == "second queued"
	})
}

func TestSpeechQueueSurvivesPlaybackError(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.c.StartCall(ctx); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	waitFor(t, time.Second, "welcome playback", func() bool {
		return len(rig.provider.Spoken()) == 1
	})

	rig.c.do(func() { rig.c.queue.enqueue("after failure") })

	// A failed utterance is dropped and the queue moves on.
	if !rig.provider.FinishPlayback(context.DeadlineExceeded) {
		t.Fatalf("FinishPlayback() found no open playback")
	}
	waitFor(t, time.Second, "next playback after error", func() bool {
		spoken := rig.provider.Spoken()
		return len(spoken) == 2 && spoken[1] == "after failure"
	})
}

func TestCancelAllResetsQueueState(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.c.StartCall(ctx); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	waitFor(t, time.Second, "welcome playback", func() bool {
		return len(rig.provider.Spoken()) == 1
	})
	rig.c.do(func() {
		rig.c.queue.enqueue("doomed one")
		rig.c.queue.enqueue("doomed two")
	})

	rig.c.do(func() { rig.c.queue.cancelAll() })

	speaking, _, pending, err := rig.c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if speaking || pending != 0 {
		t.Fatalf("post-cancel status = speaking=%v pending=%d, want idle and empty", speaking, pending)
	}
	if n := rig.provider.CancelledPlaybacks(); n != 1 {
		t.Fatalf("cancelled playbacks = %d, want 1", n)
	}

	// The settle timer from the cancelled playback must not resurrect the
	// dropped queue entries.
	time.Sleep(20 * time.Millisecond)
	if got := len(rig.provider.Spoken()); got != 1 {
		t.Fatalf("spoken after cancel = %d utterances, want 1", got)
	}
}

func TestEnqueueDuringSettleWindowKeepsOrder(t *testing.T) {
	delays := testDelays()
	delays.Settle = 60 * time.Millisecond
	rig := newRigWithDelays(t, delays)
	ctx := context.Background()

	if _, err := rig.c.StartCall(ctx); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	waitFor(t, time.Second, "welcome playback", func() bool {
		return len(rig.provider.Spoken()) == 1
	})
	rig.c.do(func() { rig.c.queue.enqueue("second in line") })

	// Finish the welcome and wait until the queue sits in the settle window:
	// not speaking, one entry pending.
	if !rig.provider.FinishPlayback(nil) {
		t.Fatalf("FinishPlayback() found no open playback")
	}
	waitFor(t, time.Second, "settle window", func() bool {
		speaking, _, pending, err := rig.c.Status(ctx)
		return err == nil && !speaking && pending == 1
	})

	// An arrival inside the window must line up behind the pending entry,
	// not start playing ahead of it.
	rig.c.do(func() { rig.c.queue.enqueue("third in line") })

	waitFor(t, time.Second, "second playback", func() bool {
		spoken := rig.provider.Spoken()
		return len(spoken) == 2 && spoken[1] == "second in line"
	})
	if !rig.provider.FinishPlayback(nil) {
		t.Fatalf("FinishPlayback() found no open playback")
	}
	waitFor(t, time.Second, "third playback", func() bool {
		spoken := rig.provider.Spoken()
		return len(spoken) == 3 && spoken[2] == "third in line"
	})
}

// slowVoicesProvider simulates a voice inventory helper that takes a long
// time to answer.
type slowVoicesProvider struct {
	*speech.MockProvider
	delay time.Duration
}

func (p *slowVoicesProvider) Voices() []speech.Voice {
	time.Sleep(p.delay)
	return p.MockProvider.Voices()
}

func TestSlowVoiceInventoryDoesNotBlockBargeIn(t *testing.T) {
	provider := &slowVoicesProvider{MockProvider: speech.NewMockProvider(), delay: 250 * time.Millisecond}
	c := newRunningController(t, ivr.NewMockClient(), provider, store.NewInMemoryStore(), testDelays())
	ctx := context.Background()

	if _, err := c.StartCall(ctx); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}

	// The welcome's voice lookup is now sleeping on a worker goroutine. The
	// loop must keep handling input without waiting for it.
	start := time.Now()
	if err := c.PressKey(ctx, "5"); err != nil {
		t.Fatalf("PressKey() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("PressKey() took %v with a slow voice inventory, want immediate handling", elapsed)
	}

	// The welcome was cancelled before its lookup finished; only the keypad
	// reply plays, after its own lookup completes.
	waitFor(t, 2*time.Second, "reply playback", func() bool {
		spoken := provider.Spoken()
		return len(spoken) == 1 && spoken[0] == "You said 5."
	})
}
