package call

import (
	"log"
	"strings"

	"github.com/railvoice/kiosk/internal/speech"
)

// speechQueue serializes spoken output. It owns the speaking flag and the
// pending utterances; every method runs on the controller loop, so no lock
// is needed. gen is bumped by cancelAll, which invalidates every deferred
// continuation (settle timers, voice retries, playback completions) issued
// before the cancellation.
type speechQueue struct {
	c        *Controller
	speaking bool
	pending  []string
	current  speech.Playback
	gen      uint64
}

func (q *speechQueue) enqueue(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	// During the settle window between two queued utterances speaking is
	// false but pending is not empty; a new arrival must line up behind the
	// queued entries or it would jump the FIFO order.
	if q.speaking || len(q.pending) > 0 {
		q.pending = append(q.pending, text)
		q.c.metrics.SpeechQueueDepth.Set(float64(len(q.pending)))
		return
	}
	q.speakNext(text)
}

// speakNext begins playback of text. The voice inventory query may shell out
// to an engine helper, so it runs off the loop; the loop stays free for
// keypad and barge-in handling. When the engine reports zero voices the
// start is deferred once by VoiceRetryDelay so an asynchronously loading
// voice inventory gets a second look; the retry falls back to engine
// defaults rather than deferring again.
func (q *speechQueue) speakNext(text string) {
	q.speaking = true
	g := q.gen

	q.fetchVoices(g, func(voices []speech.Voice) {
		if len(voices) == 0 {
			q.c.after(q.c.delays.VoiceRetry, func() {
				if g != q.gen {
					return
				}
				q.fetchVoices(g, func(voices []speech.Voice) {
					q.beginPlayback(text, voices)
				})
			})
			return
		}
		q.beginPlayback(text, voices)
	})
}

// fetchVoices queries the synthesizer on a worker goroutine and posts the
// inventory back to the loop. The continuation is dropped if the queue was
// cancelled in the meantime.
func (q *speechQueue) fetchVoices(g uint64, fn func([]speech.Voice)) {
	go func() {
		voices := q.c.synth.Voices()
		q.c.do(func() {
			if g != q.gen {
				return
			}
			fn(voices)
		})
	}()
}

func (q *speechQueue) beginPlayback(text string, voices []speech.Voice) {
	g := q.gen
	voice := pickVoice(voices)

	pb, err := q.c.synth.Speak(q.c.runCtx, text, voice)
	if err != nil {
		log.Printf("speech queue: playback start failed: %v", err)
		q.c.metrics.ProviderErrors.WithLabelValues("synthesis", "start_failed").Inc()
		q.onPlaybackDone(g, err)
		return
	}
	q.current = pb
	q.c.publishStatus()

	go func() {
		err := <-pb.Done()
		q.c.do(func() { q.onPlaybackDone(g, err) })
	}()
}

// onPlaybackDone treats success and failure identically: losing one spoken
// utterance is acceptable, a stalled queue is not.
func (q *speechQueue) onPlaybackDone(g uint64, err error) {
	if g != q.gen {
		return
	}
	q.current = nil
	q.speaking = false
	q.c.metrics.UtterancesSpoken.Inc()
	if err != nil {
		log.Printf("speech queue: playback ended with error: %v", err)
	}

	if len(q.pending) > 0 {
		q.c.after(q.c.delays.Settle, func() {
			if g != q.gen || q.speaking || len(q.pending) == 0 {
				return
			}
			next := q.pending[0]
			q.pending = q.pending[1:]
			q.c.metrics.SpeechQueueDepth.Set(float64(len(q.pending)))
			q.speakNext(next)
		})
	}
	q.c.publishStatus()
}

// cancelAll is the barge-in primitive: stop any in-flight playback, drop the
// pending queue and reset the speaking flag, in one loop turn. Safe to call
// when idle.
func (q *speechQueue) cancelAll() {
	q.gen++
	if q.current != nil {
		q.current.Cancel()
		q.current = nil
	}
	if q.speaking || len(q.pending) > 0 {
		q.c.metrics.Interruptions.Inc()
	}
	q.pending = nil
	q.speaking = false
	q.c.metrics.SpeechQueueDepth.Set(0)
	q.c.publishStatus()
}

// pickVoice applies the playback voice preference ladder: a natural English
// voice, then a female English voice, then an en-IN voice, then any English
// voice. nil means engine default.
func pickVoice(voices []speech.Voice) *speech.Voice {
	var natural, female, localePref, anyEnglish *speech.Voice
	for i := range voices {
		v := &voices[i]
		if !isEnglish(v.Lang) {
			continue
		}
		if anyEnglish == nil {
			anyEnglish = v
		}
		if natural == nil && v.Natural {
			natural = v
		}
		if female == nil && strings.EqualFold(v.Gender, "female") {
			female = v
		}
		if localePref == nil && strings.EqualFold(v.Lang, "en-IN") {
			localePref = v
		}
	}
	switch {
	case natural != nil:
		return natural
	case female != nil:
		return female
	case localePref != nil:
		return localePref
	default:
		return anyEnglish
	}
}

func isEnglish(lang string) bool {
	lang = strings.ToLower(strings.TrimSpace(lang))
	return lang == "en" || strings.HasPrefix(lang, "en-") || strings.HasPrefix(lang, "en_")
}
