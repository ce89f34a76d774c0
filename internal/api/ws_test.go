package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/JakeFAU/review-trends/internal/progress"
)

func dialProgress(t *testing.T, server *Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/progress/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readProgress(ctx context.Context, t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestProgressSocket_StreamsUntilComplete(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	conn, ctx := dialProgress(t, newTestServer(Deps{Tracker: tracker}))

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: msgStart, RunID: "run-ws"}))

	first := readProgress(ctx, t, conn)
	require.Equal(t, msgProgress, first.Type)
	require.Equal(t, "run-ws", first.RunID)
	require.NotNil(t, first.Percentage)
	require.Equal(t, 0, *first.Percentage)

	_, ok := tracker.Get("run-ws")
	require.True(t, ok)

	tracker.Start("run-ws")
	tracker.Advance("run-ws", 50)
	tracker.Complete("run-ws")

	last := 0
	for last < 100 {
		msg := readProgress(ctx, t, conn)
		require.Equal(t, msgProgress, msg.Type)
		require.GreaterOrEqual(t, *msg.Percentage, last)
		last = *msg.Percentage
	}
	require.Equal(t, 100, last)
}

func TestProgressSocket_FinishedRunSendsOnce(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	tracker.Complete("run-done")
	conn, ctx := dialProgress(t, newTestServer(Deps{Tracker: tracker}))

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: msgStart, RunID: "run-done"}))
	msg := readProgress(ctx, t, conn)
	require.Equal(t, 100, *msg.Percentage)

	readCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	var extra wsMessage
	require.Error(t, wsjson.Read(readCtx, conn, &extra))
}

func TestProgressSocket_RejectsBadMessages(t *testing.T) {
	t.Parallel()

	conn, ctx := dialProgress(t, newTestServer(Deps{Tracker: newTestTracker(t)}))

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: "subscribe"}))
	msg := readProgress(ctx, t, conn)
	require.Equal(t, msgError, msg.Type)
	require.Equal(t, "unknown message type", msg.Error)

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: msgStart}))
	msg = readProgress(ctx, t, conn)
	require.Equal(t, msgError, msg.Type)
	require.Equal(t, "run_id is required", msg.Error)
}

// evictingTracker registers runs but never finds them again, as when the
// retention limit pushes a run out between reads.
type evictingTracker struct{}

func (evictingTracker) Ensure(runID string) progress.State { return progress.State{RunID: runID} }

func (evictingTracker) Get(string) (progress.State, bool) { return progress.State{}, false }

func dialSocket(t *testing.T, socket *ProgressSocket) (*websocket.Conn, context.Context) {
	t.Helper()
	ts := httptest.NewServer(socket)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func TestProgressSocket_UntrackedRunEndsWithError(t *testing.T) {
	t.Parallel()

	conn, ctx := dialSocket(t, NewProgressSocket(evictingTracker{}, 10*time.Millisecond, time.Minute, nil))

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: msgStart, RunID: "run-gone"}))
	msg := readProgress(ctx, t, conn)
	require.Equal(t, msgError, msg.Type)
	require.Equal(t, "run-gone", msg.RunID)
	require.Equal(t, "run is no longer tracked", msg.Error)

	readCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	var extra wsMessage
	require.Error(t, wsjson.Read(readCtx, conn, &extra))
}

func TestProgressSocket_UnstartedRunEndsAfterIdleLimit(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	conn, ctx := dialSocket(t, NewProgressSocket(tracker, 10*time.Millisecond, 50*time.Millisecond, nil))

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: msgStart, RunID: "run-idle"}))
	msg := readProgress(ctx, t, conn)
	require.Equal(t, msgProgress, msg.Type)
	require.Equal(t, 0, *msg.Percentage)

	for msg.Type == msgProgress {
		require.Equal(t, 0, *msg.Percentage)
		msg = readProgress(ctx, t, conn)
	}
	require.Equal(t, msgError, msg.Type)
	require.Equal(t, "run has not started", msg.Error)
}

func TestProgressSocket_RunningRunIsNotIdle(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	tracker.Start("run-slow")
	conn, ctx := dialSocket(t, NewProgressSocket(tracker, 10*time.Millisecond, 20*time.Millisecond, nil))

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: msgStart, RunID: "run-slow"}))
	for range 10 {
		msg := readProgress(ctx, t, conn)
		require.Equal(t, msgProgress, msg.Type)
	}
	tracker.Complete("run-slow")
	for {
		msg := readProgress(ctx, t, conn)
		require.Equal(t, msgProgress, msg.Type)
		if *msg.Percentage == 100 {
			break
		}
	}
}
