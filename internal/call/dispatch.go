package call

import (
	"time"

	"github.com/railvoice/kiosk/internal/ivr"
	"github.com/railvoice/kiosk/internal/protocol"
)

// handleUserInput runs on the loop after barge-in cancellation has already
// happened. It logs the user turn and hands the raw input to the remote
// dialogue session. display is what the transcript shows ("Pressed: 5" for
// keypad turns); input is the raw text the service receives.
func (c *Controller) handleUserInput(display, input, kind string) {
	if !c.active {
		return
	}
	u := c.transcript.append(RoleUser, display, time.Now())
	c.publishUtterance(u)
	c.exchanges++
	c.dispatchTurn(input, kind)
}

func (c *Controller) dispatchTurn(input, kind string) {
	sessionID := c.sessionID
	g := c.callGen
	started := time.Now()
	c.metrics.DialogueTurns.WithLabelValues(kind).Inc()

	go func() {
		reply, err := c.ivr.SubmitInput(c.runCtx, sessionID, input)
		c.do(func() { c.onTurnResult(g, reply, err, started) })
	}()
}

// onTurnResult routes one submit-input response. A failure leaves the
// session active; there is no automatic retry.
func (c *Controller) onTurnResult(g uint64, reply ivr.Reply, err error, started time.Time) {
	if g != c.callGen || !c.active {
		return
	}
	c.metrics.ObserveTurnLatency(time.Since(started))

	if err != nil {
		c.metrics.ProviderErrors.WithLabelValues("ivr", "submit_failed").Inc()
		c.publishError("network_error", "ivr", true, "Could not reach the enquiry service. Please try again.")
		return
	}

	c.publish(protocol.MenuUpdate{
		Type:    protocol.TypeMenuUpdate,
		State:   reply.State,
		Options: reply.Options,
	})

	if reply.Message != "" {
		u := c.transcript.append(RoleSystem, reply.Message, time.Now())
		c.publishUtterance(u)

		// A short delay keeps the enqueue clear of the barge-in cancellation
		// issued for the input that produced this reply.
		msg := reply.Message
		c.after(c.delays.Reply, func() {
			if g != c.callGen || !c.active {
				return
			}
			c.queue.enqueue(msg)
		})
	}

	if reply.IsEnd {
		// Let the final reply play out before tearing the call down.
		c.metrics.CallEvents.WithLabelValues("dialogue_complete").Inc()
		c.after(c.delays.EndCall, func() {
			if g != c.callGen || !c.active {
				return
			}
			c.finishCall("dialogue_complete")
		})
	}
}
