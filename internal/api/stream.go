package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"robustroute/internal/model"
	"robustroute/internal/store"
)

const heartbeatEvery = 15 * time.Second

// lookupRun returns the run for a subscription. A well-formed id that is not
// stored yet is treated as a pending run, so a client can subscribe before
// posting a solve with its own runId.
func (s *Server) lookupRun(ctx context.Context, id string) (model.Run, error) {
	run, err := s.Store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if _, perr := uuid.Parse(id); perr == nil {
			return model.Run{ID: id, Status: model.RunRunning}, nil
		}
	}
	return run, err
}

func writeSSE(w http.ResponseWriter, f http.Flusher, event string, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
	f.Flush()
}

// RunEventsHandler handles GET /v1/runs/{id}/events/stream (SSE). The stream
// ends after the run.done event.
func (s *Server) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before looking the run up so nothing between the two is lost
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	run, err := s.lookupRun(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if run.Status != model.RunRunning {
		writeSSE(w, flusher, model.EventDone, model.ProgressEvent{
			Type:  model.EventDone,
			RunID: id,
			Done:  &model.RunDone{Status: run.Status, BestCost: run.BestCost, Error: run.Error},
		})
		return
	}
	heartbeat := map[string]string{"runId": id}
	writeSSE(w, flusher, "heartbeat", heartbeat)

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, flusher, evt.Type, evt)
			if evt.Type == model.EventDone {
				return
			}
		case <-ticker.C:
			writeSSE(w, flusher, "heartbeat", heartbeat)
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage follows the graphql-transport-ws framing: connection_init,
// subscribe, next, complete, ping and pong.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	RunID string `json:"runId"`
}

// RunsWSHandler handles GET /v1/runs/ws. Each subscribe message names a run;
// its progress events are sent as next messages until run.done, then complete.
func (s *Server) RunsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, msg string) {
		b, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: b})
		_ = write(wsMessage{Type: "complete", ID: id})
	}

	type sub struct {
		runID string
		ch    chan model.ProgressEvent
	}
	var (
		mu   sync.Mutex
		subs = map[string]sub{}
		wg   sync.WaitGroup
	)
	unsubscribe := func(id string) {
		mu.Lock()
		sb, ok := subs[id]
		delete(subs, id)
		mu.Unlock()
		if ok {
			s.Broker.Unsubscribe(sb.runID, sb.ch)
		}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

	done := make(chan struct{})
	defer close(done)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl wsSubscribe
			if err := json.Unmarshal(msg.Payload, &pl); err != nil || pl.RunID == "" {
				fail(msg.ID, "runId required")
				continue
			}
			ch := s.Broker.Subscribe(pl.RunID)
			run, err := s.lookupRun(r.Context(), pl.RunID)
			if err != nil {
				s.Broker.Unsubscribe(pl.RunID, ch)
				fail(msg.ID, err.Error())
				continue
			}
			if run.Status != model.RunRunning {
				s.Broker.Unsubscribe(pl.RunID, ch)
				b, _ := json.Marshal(model.ProgressEvent{Type: model.EventDone, RunID: run.ID, Done: &model.RunDone{Status: run.Status, BestCost: run.BestCost, Error: run.Error}})
				_ = write(wsMessage{Type: "next", ID: msg.ID, Payload: b})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			mu.Lock()
			subs[msg.ID] = sub{runID: pl.RunID, ch: ch}
			mu.Unlock()
			wg.Add(1)
			go func(id string, c chan model.ProgressEvent) {
				defer wg.Done()
				for evt := range c {
					b, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: b})
					if evt.Type == model.EventDone {
						break
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
				unsubscribe(id)
			}(msg.ID, ch)
		case "complete":
			unsubscribe(msg.ID)
		}
	}
	mu.Lock()
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	mu.Unlock()
	for _, id := range ids {
		unsubscribe(id)
	}
	wg.Wait()
}
