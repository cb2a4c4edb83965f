package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	shellwords "github.com/mattn/go-shellwords"
)

// ExecConfig points the provider at helper commands wrapping the platform
// speech engines (arecord+whisper wrappers, espeak/piper wrappers, etc).
type ExecConfig struct {
	CaptureCommand    string
	PlaybackCommand   string
	ListVoicesCommand string
	PermissionCommand string
}

// ExecProvider shells out to configured helper commands. Capture helpers
// write one JSON line {"text": "..."} or {"error": "code"} to stdout and
// exit; playback helpers read {"text": "...", "voice": "..."} on stdin and
// exit when audio is done.
type ExecProvider struct {
	capture    []string
	playback   []string
	listVoices []string
	permission []string
}

func NewExecProvider(cfg ExecConfig) (*ExecProvider, error) {
	p := &ExecProvider{}
	parser := shellwords.NewParser()

	parse := func(name, command string) ([]string, error) {
		if strings.TrimSpace(command) == "" {
			return nil, nil
		}
		args, err := parser.Parse(command)
		if err != nil {
			return nil, fmt.Errorf("parse %s command: %w", name, err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("%s command empty", name)
		}
		return args, nil
	}

	var err error
	if p.capture, err = parse("capture", cfg.CaptureCommand); err != nil {
		return nil, err
	}
	if p.playback, err = parse("playback", cfg.PlaybackCommand); err != nil {
		return nil, err
	}
	if p.listVoices, err = parse("list-voices", cfg.ListVoicesCommand); err != nil {
		return nil, err
	}
	if p.permission, err = parse("permission", cfg.PermissionCommand); err != nil {
		return nil, err
	}

	if p.playback == nil {
		return nil, fmt.Errorf("playback command is required for the exec speech provider")
	}
	return p, nil
}

func (p *ExecProvider) Available() bool { return p.capture != nil }

type captureLine struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

func (p *ExecProvider) StartCapture(ctx context.Context) (CaptureSession, error) {
	if p.capture == nil {
		return nil, fmt.Errorf("speech capture unavailable: no capture command configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, p.capture[0], p.capture[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start capture helper: %w", err)
	}

	events := make(chan CaptureEvent, 4)
	s := &execCaptureSession{events: events, cancel: cancel}

	go func() {
		defer close(events)
		defer cancel()

		scanner := bufio.NewScanner(stdout)
		gotResult := false
		for scanner.Scan() {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			var line captureLine
			if err := json.Unmarshal(raw, &line); err != nil {
				events <- CaptureEvent{Type: CaptureError, Code: "bad_output", Detail: err.Error()}
				continue
			}
			if line.Error != "" {
				events <- CaptureEvent{Type: CaptureError, Code: line.Error}
				continue
			}
			if !gotResult && strings.TrimSpace(line.Text) != "" {
				gotResult = true
				events <- CaptureEvent{Type: CaptureResult, Text: strings.TrimSpace(line.Text)}
			}
		}
		if err := cmd.Wait(); err != nil && !s.wasStopped() && !gotResult {
			events <- CaptureEvent{Type: CaptureError, Code: "helper_exit", Detail: err.Error()}
		}
		events <- CaptureEvent{Type: CaptureEnded}
	}()

	return s, nil
}

type execCaptureSession struct {
	mu      sync.Mutex
	events  chan CaptureEvent
	cancel  context.CancelFunc
	stopped bool
}

func (s *execCaptureSession) Events() <-chan CaptureEvent { return s.events }

func (s *execCaptureSession) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}

func (s *execCaptureSession) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type playbackRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Lang  string `json:"lang,omitempty"`
}

func (p *ExecProvider) Speak(ctx context.Context, text string, voice *Voice) (Playback, error) {
	req := playbackRequest{Text: text}
	if voice != nil {
		req.Voice = voice.ID
		req.Lang = voice.Lang
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal playback request: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, p.playback[0], p.playback[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start playback helper: %w", err)
	}

	pb := &execPlayback{done: make(chan error, 1), cancel: cancel}
	go func() {
		err := cmd.Wait()
		cancel()
		if pb.wasCancelled() {
			pb.done <- fmt.Errorf("playback cancelled")
			return
		}
		pb.done <- err
	}()
	return pb, nil
}

type execPlayback struct {
	mu        sync.Mutex
	done      chan error
	cancel    context.CancelFunc
	cancelled bool
}

func (pb *execPlayback) Done() <-chan error { return pb.done }

func (pb *execPlayback) Cancel() {
	pb.mu.Lock()
	if pb.cancelled {
		pb.mu.Unlock()
		return
	}
	pb.cancelled = true
	pb.mu.Unlock()
	pb.cancel()
}

func (pb *execPlayback) wasCancelled() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.cancelled
}

// Voices asks the list-voices helper for the current inventory. An empty
// result is normal shortly after engine start.
func (p *ExecProvider) Voices() []Voice {
	if p.listVoices == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.listVoices[0], p.listVoices[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	var voices []Voice
	if err := json.Unmarshal(bytes.TrimSpace(out), &voices); err != nil {
		return nil
	}
	return voices
}

// RequestCapture runs the permission helper; exit 0 grants access. Kiosks
// with no helper configured are treated as pre-provisioned.
func (p *ExecProvider) RequestCapture(ctx context.Context) (bool, error) {
	if p.permission == nil {
		return true, nil
	}
	cmd := exec.CommandContext(ctx, p.permission[0], p.permission[1:]...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("permission helper: %w", err)
	}
	return true, nil
}
