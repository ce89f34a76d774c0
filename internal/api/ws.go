package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/JakeFAU/review-trends/internal/metrics"
)

const (
	defaultProgressInterval = time.Second
	defaultProgressIdle     = 5 * time.Minute
	wsWriteTimeout          = 5 * time.Second
)

// Message types exchanged on the progress socket.
const (
	msgStart    = "start"
	msgProgress = "progress"
	msgError    = "error"
)

type wsMessage struct {
	Type       string `json:"type"`
	RunID      string `json:"run_id,omitempty"`
	Percentage *int   `json:"percentage,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProgressSocket streams a run's completion percentage to a websocket client
// at a fixed interval until the run reaches 100.
// A subscription ends with an error message when the run is no longer tracked
// or has sat unstarted below 100 for longer than the idle limit.
type ProgressSocket struct {
	tracker  ProgressReader
	interval time.Duration
	idle     time.Duration
	logger   *zap.Logger
}

// NewProgressSocket builds the handler. Non-positive durations fall back to a
// one second interval and a five minute idle limit.
func NewProgressSocket(tracker ProgressReader, interval, idle time.Duration, logger *zap.Logger) *ProgressSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	if idle <= 0 {
		idle = defaultProgressIdle
	}
	return &ProgressSocket{tracker: tracker, interval: interval, idle: idle, logger: logger}
}

// ServeHTTP upgrades the connection and serves start requests until the
// client disconnects.
func (p *ProgressSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracker unavailable")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		p.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	metrics.IncSubscribers()
	defer metrics.DecSubscribers()

	ctx, cancel := context.WithCancel(r.Context())
	var (
		wg     sync.WaitGroup
		active atomic.Bool
		mu     sync.Mutex
	)
	defer conn.CloseNow()
	defer wg.Wait()
	defer cancel()

	write := func(msg wsMessage) error {
		mu.Lock()
		defer mu.Unlock()
		writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancelWrite()
		return wsjson.Write(writeCtx, conn, msg)
	}

	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if !isClosed(err) && ctx.Err() == nil {
				p.logger.Debug("progress socket read ended", zap.Error(err))
			}
			return
		}
		switch msg.Type {
		case msgStart:
			runID := strings.TrimSpace(msg.RunID)
			if runID == "" {
				if err := write(wsMessage{Type: msgError, Error: "run_id is required"}); err != nil {
					return
				}
				continue
			}
			if !active.CompareAndSwap(false, true) {
				continue
			}
			p.tracker.Ensure(runID)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer active.Store(false)
				p.broadcast(ctx, runID, write)
			}()
		default:
			if err := write(wsMessage{Type: msgError, Error: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

// broadcast sends the current percentage immediately and then on every tick,
// returning once 100 has been sent, the run can no longer be followed, or the
// connection goes away.
func (p *ProgressSocket) broadcast(ctx context.Context, runID string, write func(wsMessage) error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		st, ok := p.tracker.Get(runID)
		var reason string
		switch {
		case !ok:
			reason = "run is no longer tracked"
		case !st.Running && st.Percentage < 100 && time.Since(st.UpdatedAt) > p.idle:
			reason = "run has not started"
		}
		if reason != "" {
			p.logger.Debug("progress subscription ended", zap.String("run_id", runID), zap.String("reason", reason))
			if err := write(wsMessage{Type: msgError, RunID: runID, Error: reason}); err != nil && ctx.Err() == nil {
				p.logger.Debug("progress write failed", zap.String("run_id", runID), zap.Error(err))
			}
			return
		}
		pct := st.Percentage
		if err := write(wsMessage{Type: msgProgress, RunID: runID, Percentage: &pct}); err != nil {
			if ctx.Err() == nil {
				p.logger.Debug("progress write failed", zap.String("run_id", runID), zap.Error(err))
			}
			return
		}
		if pct >= 100 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isClosed(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
