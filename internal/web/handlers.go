package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/GyroDrive/internal/logic/motion"
	"github.com/cjeanneret/GyroDrive/internal/logic/sequence"
)

const (
	// maxBodyBytes bounds the POST /run request body.
	maxBodyBytes = 1 << 20
	// runInterval is the minimum time between two accepted runs.
	runInterval = 5 * time.Second
)

// RunRequest is the POST /run body.
type RunRequest struct {
	Steps string `json:"steps"` // e.g. "turn:90,straight:500@200"
}

// RunFunc executes a validated move sequence and returns the result of
// every step attempted, the failing one included.
// It is called from the POST /run handler in a goroutine; ctx is cancelled
// by POST /stop and on server shutdown.
type RunFunc func(ctx context.Context, steps []sequence.Step) ([]motion.Result, error)

// FormConfig holds default values and bounds for the control form (from config).
type FormConfig struct {
	DefaultSpeed   int    `json:"default_speed"`
	MaxSpeed       int    `json:"max_speed"`
	MaxTurnDeg     int    `json:"max_turn_deg"`
	TickMs         int    `json:"tick_ms"`
	TurnPolicy     string `json:"turn_policy"`
	CorrectionMode string `json:"correction_mode"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Run          RunFunc
	FormDefaults FormConfig
	runningMu    sync.Mutex
	running      bool
	cancel       context.CancelFunc
	runs         sync.WaitGroup
	limiter      *rate.Limiter
	staticFS     fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If run is nil, POST /run will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, run RunFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Run:          run,
		FormDefaults: formDefaults,
		limiter:      rate.NewLimiter(rate.Every(runInterval), 1),
		staticFS:     staticFS,
	}
}

// ValidateRequest parses the step list and checks every step against the
// configured bounds.
func ValidateRequest(req RunRequest, form FormConfig) ([]sequence.Step, error) {
	steps, err := sequence.Parse(req.Steps, form.DefaultSpeed)
	if err != nil {
		return nil, err
	}
	for i, s := range steps {
		switch s.Kind {
		case sequence.KindTurn:
			if form.MaxTurnDeg > 0 && (s.Heading > form.MaxTurnDeg || s.Heading < -form.MaxTurnDeg) {
				return nil, fmt.Errorf("step %d: turn must be within ±%d, got %d", i+1, form.MaxTurnDeg, s.Heading)
			}
		case sequence.KindStraight:
			if form.MaxSpeed > 0 && s.Speed > form.MaxSpeed {
				return nil, fmt.Errorf("step %d: speed must be <= %d, got %d", i+1, form.MaxSpeed, s.Speed)
			}
		}
	}
	return steps, nil
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start a move sequence.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	steps, err := ValidateRequest(req, h.FormDefaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Run == nil {
		http.Error(w, "drive base not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "a sequence is already running", http.StatusConflict)
		return
	}
	if !h.limiter.Allow() {
		h.runningMu.Unlock()
		http.Error(w, "too many runs, wait a few seconds", http.StatusTooManyRequests)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.running = true
	h.cancel = cancel
	h.runs.Add(1)
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer h.runs.Done()
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancel = nil
			h.runningMu.Unlock()
		}()

		results, err := h.Run(ctx, steps)
		h.broadcastResults(steps, results, err)
		if err != nil {
			h.Broadcaster.Broadcast("error", "Sequence failed: "+err.Error())
			log.Printf("sequence failed: %v", err)
		} else {
			h.Broadcaster.Broadcast("info", "Sequence complete")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"status": "started", "steps": len(steps)})
}

// HandleStop handles POST /stop: it cancels the running sequence. The
// controller stops the motors before the sequence returns.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.stopRunning() {
		json.NewEncoder(w).Encode(map[string]string{"status": "idle"})
		return
	}
	h.Broadcaster.Broadcast("warn", "Stop requested")
	json.NewEncoder(w).Encode(map[string]string{"status": "stopping"})
}

// broadcastResults publishes one step event per attempted step. err is
// attached to the last one when the sequence failed.
func (h *Handlers) broadcastResults(steps []sequence.Step, results []motion.Result, err error) {
	for i, res := range results {
		if i >= len(steps) {
			break
		}
		var stepErr error
		if err != nil && i == len(results)-1 {
			stepErr = err
		}
		h.Broadcaster.BroadcastStep(NewStepEvent(i+1, steps[i], res, stepErr))
	}
}

// waitIdle blocks until the running sequence, if any, has returned, or
// until ctx is done.
func (h *Handlers) waitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sequence still running: %w", ctx.Err())
	}
}

// stopRunning cancels the running sequence, if any.
func (h *Handlers) stopRunning() bool {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
