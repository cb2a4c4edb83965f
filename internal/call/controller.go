package call

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/railvoice/kiosk/internal/ivr"
	"github.com/railvoice/kiosk/internal/observability"
	"github.com/railvoice/kiosk/internal/protocol"
	"github.com/railvoice/kiosk/internal/speech"
	"github.com/railvoice/kiosk/internal/store"
)

// Delays are the controller's fixed timing knobs.
type Delays struct {
	// Settle separates one queued utterance's completion from the next start.
	Settle time.Duration
	// Reply separates a barge-in cancellation from enqueueing its reply.
	Reply time.Duration
	// VoiceRetry defers playback once while the voice inventory loads.
	VoiceRetry time.Duration
	// EndCall separates an end-of-dialogue reply from session teardown.
	EndCall time.Duration
	// ElapsedTick is the display timer period.
	ElapsedTick time.Duration
}

// Controller owns all per-call state. Every mutation happens on its single
// event loop; external surfaces talk to it through posted closures, so the
// ordering contract (barge-in before dispatch, teardown order on end) holds
// without locks.
type Controller struct {
	delays     Delays
	ivr        ivr.Client
	recognizer speech.Recognizer
	synth      speech.Synthesizer
	gate       *Gate
	store      store.Store
	metrics    *observability.Metrics

	loop      chan func()
	runCtx    context.Context
	runOnce   sync.Once
	runningCh chan struct{}

	// Loop-owned call state.
	active     bool
	starting   bool
	sessionID  string
	startedAt  time.Time
	exchanges  int
	callGen    uint64
	tickStop   chan struct{}
	queue      speechQueue
	rec        recognitionController
	transcript transcriptLog

	subMu   sync.Mutex
	subs    map[int]chan any
	nextSub int
}

func NewController(
	delays Delays,
	client ivr.Client,
	provider speech.Provider,
	gate *Gate,
	st store.Store,
	metrics *observability.Metrics,
) *Controller {
	c := &Controller{
		delays:     delays,
		ivr:        client,
		recognizer: provider,
		synth:      provider,
		gate:       gate,
		store:      st,
		metrics:    metrics,
		loop:       make(chan func(), 256),
		runningCh:  make(chan struct{}),
		subs:       make(map[int]chan any),
	}
	c.queue.c = c
	c.rec.c = c
	return c
}

// Run drives the event loop until ctx is cancelled. It must be running
// before any other method is used.
func (c *Controller) Run(ctx context.Context) {
	c.runOnce.Do(func() {
		c.runCtx = ctx
		close(c.runningCh)
	})
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.loop:
			fn()
		}
	}
}

// do posts fn to the event loop. Never call from inside the loop; loop code
// invokes methods directly.
func (c *Controller) do(fn func()) {
	<-c.runningCh
	select {
	case <-c.runCtx.Done():
	case c.loop <- fn:
	}
}

// after schedules fn on the loop once d elapses. Callers guard staleness
// with generation counters.
func (c *Controller) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { c.do(fn) })
}

// call runs fn on the loop and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	c.do(func() {
		fn()
		close(done)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// StartCall requests a new session from the remote service and begins the
// call. Rejected while a call is active or starting.
func (c *Controller) StartCall(ctx context.Context) (StartInfo, error) {
	type result struct {
		info StartInfo
		err  error
	}
	resCh := make(chan result, 1)

	c.do(func() {
		if c.active || c.starting {
			resCh <- result{err: ErrCallActive}
			return
		}
		c.starting = true
		go func() {
			reply, err := c.ivr.StartSession(c.runCtx)
			c.do(func() {
				c.starting = false
				if err != nil {
					log.Printf("call: start session failed: %v", err)
					c.metrics.CallEvents.WithLabelValues("start_failed").Inc()
					c.metrics.ProviderErrors.WithLabelValues("ivr", "start_failed").Inc()
					c.publishError("network_error", "ivr", true, "Could not reach the enquiry service. Please try again.")
					resCh <- result{err: err}
					return
				}
				if ctx.Err() != nil {
					// The waiter gave up while the request was in flight.
					// Don't activate a call nobody observes; release the
					// remote session best-effort.
					go func() {
						_, _ = c.ivr.EndSession(context.Background(), reply.SessionID)
					}()
					resCh <- result{err: ctx.Err()}
					return
				}
				info := c.beginCall(reply)
				resCh <- result{info: info}
			})
		}()
	})

	select {
	case <-ctx.Done():
		return StartInfo{}, ctx.Err()
	case r := <-resCh:
		return r.info, r.err
	}
}

// beginCall installs the new session and speaks the welcome text.
func (c *Controller) beginCall(reply ivr.Reply) StartInfo {
	c.callGen++
	c.active = true
	c.sessionID = reply.SessionID
	c.startedAt = time.Now()
	c.exchanges = 0
	c.transcript.reset()
	c.queue.cancelAll()
	c.tickStop = make(chan struct{})

	c.metrics.ActiveCall.Set(1)
	c.metrics.CallEvents.WithLabelValues("started").Inc()
	log.Printf("call: session %s started", c.sessionID)

	c.publish(protocol.CallStarted{
		Type:      protocol.TypeCallStarted,
		SessionID: c.sessionID,
		StartedAt: c.startedAt.UnixMilli(),
	})
	c.publish(protocol.MenuUpdate{
		Type:    protocol.TypeMenuUpdate,
		State:   reply.State,
		Options: reply.Options,
	})

	if reply.Message != "" {
		u := c.transcript.append(RoleSystem, reply.Message, time.Now())
		c.publishUtterance(u)
		c.queue.enqueue(reply.Message)
	}

	c.startTicker(c.callGen, c.startedAt, c.tickStop)

	return StartInfo{
		SessionID: c.sessionID,
		Message:   reply.Message,
		State:     reply.State,
		Options:   reply.Options,
		StartedAt: c.startedAt,
	}
}

func (c *Controller) startTicker(g uint64, startedAt time.Time, stop chan struct{}) {
	go func() {
		ticker := time.NewTicker(c.delays.ElapsedTick)
		defer ticker.Stop()
		for {
			select {
			case <-c.runCtx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				c.do(func() {
					if g != c.callGen || !c.active {
						return
					}
					c.publish(protocol.ElapsedTick{
						Type:      protocol.TypeElapsedTick,
						SessionID: c.sessionID,
						Seconds:   int64(time.Since(startedAt) / time.Second),
					})
				})
			}
		}
	}()
}

// EndCall ends the active call. No-op error if none is active.
func (c *Controller) EndCall(ctx context.Context) (EndInfo, error) {
	var info EndInfo
	var endErr error
	err := c.call(ctx, func() {
		if !c.active {
			endErr = ErrNoActiveCall
			return
		}
		info = c.finishCall("user_hangup")
	})
	if err != nil {
		return EndInfo{}, err
	}
	return info, endErr
}

// finishCall is the single teardown path. Order matters: recognition stops
// first, then synthesis is cancelled, then session state is cleared, so no
// late capture or playback callback can observe a half-torn-down call.
func (c *Controller) finishCall(reason string) EndInfo {
	c.rec.stop()
	c.queue.cancelAll()
	close(c.tickStop)

	sessionID := c.sessionID
	startedAt := c.startedAt
	exchanges := c.exchanges
	endedAt := time.Now()
	duration := endedAt.Sub(startedAt)

	c.callGen++
	c.active = false
	c.sessionID = ""
	c.exchanges = 0

	c.metrics.ActiveCall.Set(0)
	c.metrics.CallEvents.WithLabelValues("ended").Inc()
	log.Printf("call: session %s ended after %s (%s)", sessionID, duration.Round(time.Second), reason)

	c.publish(protocol.CallEnded{
		Type:      protocol.TypeCallEnded,
		SessionID: sessionID,
		Duration:  duration.Milliseconds(),
		Exchanges: exchanges,
	})
	c.publishStatus()

	// Best-effort remote notification and local history append; neither can
	// block teardown or resurrect the session. Deliberately not tied to the
	// loop context so a shutdown-triggered end still lands.
	go func() {
		ctx := context.Background()
		if _, err := c.ivr.EndSession(ctx, sessionID); err != nil {
			log.Printf("call: end session notify failed: %v", err)
			c.metrics.ProviderErrors.WithLabelValues("ivr", "end_failed").Inc()
		}
		rec := store.CallRecord{
			SessionID:       sessionID,
			StartedAt:       startedAt.UTC(),
			EndedAt:         endedAt.UTC(),
			DurationSeconds: duration.Seconds(),
			Exchanges:       exchanges,
		}
		if err := c.store.AppendCall(ctx, rec); err != nil {
			log.Printf("call: append history failed: %v", err)
		}
	}()

	return EndInfo{SessionID: sessionID, Duration: duration, Exchanges: exchanges}
}

// PressKey handles one keypad symbol: barge-in, transcript, dispatch.
func (c *Controller) PressKey(ctx context.Context, key string) error {
	if err := protocol.ValidateKey(key); err != nil {
		return err
	}
	var keyErr error
	err := c.call(ctx, func() {
		if !c.active {
			keyErr = ErrNoActiveCall
			return
		}
		c.queue.cancelAll()
		c.handleUserInput("Pressed: "+key, key, "keypad")
	})
	if err != nil {
		return err
	}
	return keyErr
}

// StartListening activates speech capture for one utterance.
func (c *Controller) StartListening(ctx context.Context) error {
	var startErr error
	if err := c.call(ctx, func() { startErr = c.rec.start() }); err != nil {
		return err
	}
	return startErr
}

// StopListening deactivates capture. Idempotent.
func (c *Controller) StopListening(ctx context.Context) error {
	return c.call(ctx, func() { c.rec.stop() })
}

// Transcript returns a copy of the current transcript log.
func (c *Controller) Transcript(ctx context.Context) ([]Utterance, error) {
	var out []Utterance
	if err := c.call(ctx, func() { out = c.transcript.snapshot() }); err != nil {
		return nil, err
	}
	return out, nil
}

// Status reports the queue and capture flags, mainly for tests and health
// output.
func (c *Controller) Status(ctx context.Context) (speaking, listening bool, pending int, err error) {
	err = c.call(ctx, func() {
		speaking = c.queue.speaking
		listening = c.rec.listening
		pending = len(c.queue.pending)
	})
	return
}

// Subscribe registers a display-surface listener. Messages are dropped, not
// blocked on, when a subscriber falls behind.
func (c *Controller) Subscribe() (<-chan any, func()) {
	ch := make(chan any, 64)
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Controller) publish(msg any) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (c *Controller) publishUtterance(u Utterance) {
	c.publish(protocol.Utterance{
		Type:    protocol.TypeUtterance,
		ID:      u.ID,
		Role:    string(u.Role),
		Message: u.Message,
		TSMs:    u.CreatedAt.UnixMilli(),
	})
}

func (c *Controller) publishStatus() {
	c.publish(protocol.StatusUpdate{
		Type:      protocol.TypeStatusUpdate,
		Speaking:  c.queue.speaking,
		Listening: c.rec.listening,
		Pending:   len(c.queue.pending),
	})
}

func (c *Controller) publishSystem(code, detail string) {
	c.publish(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: code, Detail: detail})
}

func (c *Controller) publishError(code, source string, retryable bool, detail string) {
	c.publish(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	})
}
