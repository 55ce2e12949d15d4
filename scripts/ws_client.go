// Package main runs a demo WebSocket client that watches an anneal's progress.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// demoInstance is a depot and four customers on a line, pessimistic 25% slower.
func demoInstance() map[string]any {
	pos := []float64{0, 10, 20, 30, 40}
	e := make([][]float64, len(pos))
	p := make([][]float64, len(pos))
	for i := range pos {
		e[i] = make([]float64, len(pos))
		p[i] = make([]float64, len(pos))
		for j := range pos {
			d := pos[i] - pos[j]
			if d < 0 {
				d = -d
			}
			e[i][j], p[i][j] = d, d*1.25
		}
	}
	return map[string]any{
		"dataset":  "ws-demo",
		"matrices": map[string]any{"expected": e, "pessimistic": p},
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	runID := uuid.New().String()
	log.Printf("Run ID: %s", runID)

	// Connect WS and subscribe before the run starts
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"runId": runID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
			if m.Type == "complete" {
				return
			}
		}
	}()

	// Start the anneal with the chosen run id
	time.Sleep(200 * time.Millisecond)
	body, _ := json.Marshal(map[string]any{
		"runId":    runID,
		"instance": demoInstance(),
		"routes":   [][]int{{1}, {2}, {3}, {4}},
		"config":   map[string]any{"tMax": 100, "tMin": 0.5, "alpha": 0.8, "itersPerTemp": 50},
	})
	resp, err := http.Post(base+"/v1/anneal", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		SolutionID string `json:"solutionId"`
		Result     struct {
			BestCost   float64 `json:"best_cost"`
			BestRoutes [][]int `json:"best_routes"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	log.Printf("anneal %s: best_cost=%.2f routes=%v", resp.Status, out.Result.BestCost, out.Result.BestRoutes)

	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
