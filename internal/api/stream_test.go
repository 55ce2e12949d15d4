package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"robustroute/internal/model"
	"robustroute/internal/store"
)

func doneEvent(runID string) model.ProgressEvent {
	return model.ProgressEvent{Type: model.EventDone, RunID: runID, Done: &model.RunDone{Status: model.RunSucceeded, BestCost: 40}}
}

func subscribers(b *Broker, runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}

// readEvents returns SSE event names until stop is seen or the stream ends.
func readEvents(t *testing.T, sc *bufio.Scanner, stop string) []string {
	t.Helper()
	var names []string
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
			if name == stop {
				return names
			}
		}
	}
	return names
}

func TestRunEventsFinishedRun(t *testing.T) {
	s := newTestServer(t)
	run, err := s.Store.CreateRun(context.Background(), model.Run{Algorithm: "anneal"})
	require.NoError(t, err)
	_, err = s.Store.FinishRun(context.Background(), run.ID, store.RunFinish{Status: model.RunFailed, Error: "boom"})
	require.NoError(t, err)

	rr := do(t, s.Handler(), http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	require.Contains(t, body, "event: run.done")
	require.Contains(t, body, `"status":"failed"`)

	rr = do(t, s.Handler(), http.MethodGet, "/v1/runs/nope/events/stream", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRunEventsLive(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	run, err := s.Store.CreateRun(context.Background(), model.Run{Algorithm: "anneal"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/v1/runs/" + run.ID + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	require.Equal(t, []string{"heartbeat"}, readEvents(t, sc, "heartbeat"))

	s.Broker.Publish(run.ID, epochEvent(run.ID, 1))
	s.Broker.Publish(run.ID, doneEvent(run.ID))
	require.Equal(t, []string{model.EventEpoch, model.EventDone}, readEvents(t, sc, model.EventDone))
	require.Eventually(t, func() bool { return subscribers(s.Broker.(*Broker), run.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunsWebSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	run, err := s.Store.CreateRun(context.Background(), model.Run{Algorithm: "batch"})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() wsMessage {
		var m wsMessage
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init"}))
	require.Equal(t, "connection_ack", read().Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "ping"}))
	require.Equal(t, "pong", read().Type)

	bad, _ := json.Marshal(wsSubscribe{RunID: "missing"})
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "subscribe", ID: "0", Payload: bad}))
	require.Equal(t, "error", read().Type)
	require.Equal(t, "complete", read().Type)

	pl, _ := json.Marshal(wsSubscribe{RunID: run.ID})
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}))
	require.Eventually(t, func() bool { return subscribers(s.Broker.(*Broker), run.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Broker.Publish(run.ID, epochEvent(run.ID, 2))
	s.Broker.Publish(run.ID, doneEvent(run.ID))

	m := read()
	require.Equal(t, "next", m.Type)
	require.Equal(t, "1", m.ID)
	var evt model.ProgressEvent
	require.NoError(t, json.Unmarshal(m.Payload, &evt))
	require.Equal(t, 2, evt.Epoch.Epoch)

	m = read()
	require.Equal(t, "next", m.Type)
	require.NoError(t, json.Unmarshal(m.Payload, &evt))
	require.Equal(t, model.EventDone, evt.Type)
	require.Equal(t, "complete", read().Type)
}

func TestSubscribeBeforeAnneal(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	runID := uuid.New().String()
	resp, err := http.Get(srv.URL + "/v1/runs/" + runID + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sc := bufio.NewScanner(resp.Body)
	require.Equal(t, []string{"heartbeat"}, readEvents(t, sc, "heartbeat"))

	rr := do(t, s.Handler(), http.MethodPost, "/v1/anneal", model.AnnealRequest{RunID: runID, Instance: fourNode(), Routes: [][]int{{1}, {2}, {3}}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, runID, decode[model.AnnealResponse](t, rr).RunID)

	names := readEvents(t, sc, model.EventDone)
	require.NotEmpty(t, names)
	require.Equal(t, model.EventDone, names[len(names)-1])
	require.Contains(t, names, model.EventEpoch)

	rr = do(t, s.Handler(), http.MethodPost, "/v1/anneal", model.AnnealRequest{RunID: runID, Instance: fourNode(), Routes: [][]int{{1}, {2}, {3}}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
