package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mtzanidakis/skopos/internal/event"
	"github.com/mtzanidakis/skopos/internal/stream"
	"github.com/mtzanidakis/skopos/internal/swarm"
)

const (
	analysisWriteWait = 10 * time.Second
	drainGrace        = 300 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans raw JSON frames out to every observer socket.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mu        sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, frame); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	default:
		slog.Warn("websocket broadcast channel full, dropping event")
	}
}

func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// handleObserverSocket feeds a client everything published on the bus.
func (s *Server) handleObserverSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	s.hub.Register(conn)
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	// Keep connection alive; observers only listen
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// wsTransport arms a write deadline before every frame so a stalled client
// cannot wedge the pump goroutine.
type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) WriteJSON(v any) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(analysisWriteWait))
	return t.conn.WriteJSON(v)
}

type socketCommand struct {
	Action          string   `json:"action"`
	URL             string   `json:"url"`
	CompetitorURLs  []string `json:"competitor_urls"`
	Language        string   `json:"language"`
	IndustryContext string   `json:"industry_context"`
}

// handleAnalysisSocket drives interactive runs: a start command triggers
// one analysis whose events stream back as frames, paced by a pump so a
// burst of agent output stays readable.
func (s *Server) handleAnalysisSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	t := wsTransport{conn}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd socketCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = t.WriteJSON(event.ErrorFrame("invalid command"))
			continue
		}

		switch cmd.Action {
		case "ping":
			_ = t.WriteJSON(event.PongFrame())
		case "start":
			if cmd.URL == "" {
				_ = t.WriteJSON(event.ErrorFrame("url is required"))
				continue
			}
			s.streamAnalysis(r.Context(), t, cmd)
		default:
			_ = t.WriteJSON(event.ErrorFrame("unknown action: " + cmd.Action))
		}
	}
}

// streamAnalysis runs one analysis, pumping events to the socket as they
// happen. The completion frame is written directly after the pump drains,
// so it is delivered even when interim events were dropped.
func (s *Server) streamAnalysis(ctx context.Context, t wsTransport, cmd socketCommand) {
	pump := stream.NewPump(t)

	cb := swarm.Callbacks{
		OnInsight: func(ins event.Insight) {
			pump.Send(event.NewFrame(event.TypeAgentInsight, ins))
		},
		OnProgress: func(p event.Progress) {
			pump.Send(event.NewFrame(event.TypeAgentProgress, p))
		},
		OnStatus: func(sc event.StatusChange) {
			pump.Send(event.NewFrame(event.TypeAgentStatus, sc))
		},
	}

	out, err := s.svc.Analyze(ctx, swarm.Request{
		URL:            cmd.URL,
		CompetitorURLs: cmd.CompetitorURLs,
		Language:       cmd.Language,
		Industry:       cmd.IndustryContext,
		UserID:         "ws",
	}, cb)

	pump.Shutdown(drainGrace)

	if err != nil {
		_ = t.WriteJSON(event.ErrorFrame(err.Error()))
		return
	}
	_ = t.WriteJSON(event.NewFrame(event.TypeAnalysisComplete, out.Summary))
}
