package call

import (
	"log"

	"github.com/railvoice/kiosk/internal/speech"
)

// recognitionController drives single-shot speech capture. All methods run
// on the controller loop. gen invalidates events from a capture session that
// was stopped or torn down.
type recognitionController struct {
	c                 *Controller
	listening         bool
	pendingPermission bool
	session           speech.CaptureSession
	gen               uint64
}

func (r *recognitionController) start() error {
	if !r.c.active {
		r.c.publishError("no_active_call", "recognition", false, "Start a call before using voice input.")
		return ErrNoActiveCall
	}
	if !r.c.recognizer.Available() {
		r.c.publishError("capture_unavailable", "recognition", false, "Voice input is not available on this kiosk.")
		return nil
	}
	if r.listening || r.pendingPermission {
		// Idempotent: the UI should prevent this, the controller tolerates it.
		return nil
	}

	if r.c.gate.Requested() {
		if !r.c.gate.Granted() {
			r.c.publishError("permission_denied", "recognition", false, "Microphone access is blocked. Use the keypad instead.")
			return nil
		}
		r.beginCapture()
		return nil
	}

	// First use on this kiosk: prompt off-loop, then continue.
	r.pendingPermission = true
	go func() {
		granted := r.c.gate.Request(r.c.runCtx)
		r.c.do(func() {
			r.pendingPermission = false
			if !r.c.active {
				return
			}
			if !granted {
				r.c.publishError("permission_denied", "recognition", false, "Microphone access is blocked. Use the keypad instead.")
				return
			}
			r.beginCapture()
		})
	}()
	return nil
}

func (r *recognitionController) beginCapture() {
	sess, err := r.c.recognizer.StartCapture(r.c.runCtx)
	if err != nil {
		log.Printf("recognition: capture start failed: %v", err)
		r.c.metrics.ProviderErrors.WithLabelValues("capture", "start_failed").Inc()
		r.c.publishError("capture_failed", "recognition", true, "Could not start voice input. Please try again.")
		return
	}
	r.session = sess
	r.listening = true
	g := r.gen
	r.c.publishStatus()

	go func() {
		for evt := range sess.Events() {
			evt := evt
			r.c.do(func() { r.onCaptureEvent(g, evt) })
		}
	}()
}

func (r *recognitionController) onCaptureEvent(g uint64, evt speech.CaptureEvent) {
	if g != r.gen {
		return
	}

	switch evt.Type {
	case speech.CaptureResult:
		// Barge-in ordering is the correctness contract here: queued system
		// speech is cancelled before the transcript reaches the dispatcher.
		r.c.queue.cancelAll()
		r.stop()
		r.c.handleUserInput(evt.Text, evt.Text, "voice")

	case speech.CaptureError:
		switch evt.Code {
		case speech.CodeNoSpeech:
			// Transient noise. The engine may keep capturing; if it gave up
			// instead, the user re-activates the mic.
			r.c.publishSystem("no_speech", "No speech detected.")
		case speech.CodeNotAllowed:
			r.c.gate.Downgrade(r.c.runCtx)
			r.stop()
			r.c.metrics.ProviderErrors.WithLabelValues("capture", evt.Code).Inc()
			r.c.publishError("permission_denied", "recognition", false, "Microphone access is blocked. Use the keypad instead.")
		default:
			r.stop()
			r.c.metrics.ProviderErrors.WithLabelValues("capture", nonEmptyCode(evt.Code)).Inc()
			r.c.publishError("capture_error", "recognition", true, "Voice input failed. Please try again.")
		}

	case speech.CaptureEnded:
		if r.listening {
			r.listening = false
			r.session = nil
			r.gen++
			r.c.publishStatus()
		}
	}
}

// stop is idempotent and always returns the controller to idle.
func (r *recognitionController) stop() {
	r.gen++
	if r.session != nil {
		r.session.Stop()
		r.session = nil
	}
	if r.listening {
		r.listening = false
		r.c.publishStatus()
	}
}

func nonEmptyCode(code string) string {
	if code == "" {
		return "unknown"
	}
	return code
}
