package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/aion-systems/aion-core/pkg/clock"
	"github.com/aion-systems/aion-core/pkg/model"
)

// wsAccept upgrades an HTTP request to a WebSocket connection. Origin
// checking is left to whatever reverse proxy fronts this service in
// production, the same posture the teacher's wsHandler takes pre-Phase 7.
func wsAccept(c *echo.Context) (*websocket.Conn, error) {
	return websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
}

// wsWriteTimeout bounds how long a single client's send may block the
// broadcaster; once it expires that client's message is dropped (spec §6.2
// is a push-only, fire-and-forget stream). Clients are written one after
// another, so a stalled client delays the clients after it by up to this
// long.
const wsWriteTimeout = 5 * time.Second

// Hub is the WebSocket event hub for GET /ws/events (spec §6.2), grounded on
// the teacher's events.ConnectionManager but collapsed to a single global
// broadcast channel: this spec has no per-client channel subscription model,
// every connected client receives every event.
type Hub struct {
	clock clock.Clock
	log   *slog.Logger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

// NewHub constructs an empty Hub.
func NewHub(clk clock.Clock) *Hub {
	return &Hub{
		clock: clk,
		log:   slog.Default().With("component", "ws_hub"),
		conns: make(map[string]*websocket.Conn),
	}
}

// wsEvent is the generic envelope every pushed message shares; unused string
// and numeric fields are omitted by their omitempty tags (so is an XPDelta
// or UsagePct of 0). At is a struct, which encoding/json never omits, so an
// event that leaves it unset carries the zero time.
type wsEvent struct {
	Type       string    `json:"type"`
	Kind       string    `json:"kind,omitempty"`
	CycleID    string    `json:"cycle_id,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	XPDelta    int64     `json:"xp_delta,omitempty"`
	ProposalID string    `json:"id,omitempty"`
	Risk       string    `json:"risk,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	UsagePct   float64   `json:"usage_pct,omitempty"`
	At         time.Time `json:"at,omitempty"`
}

// HandleConnection manages one client's WebSocket lifecycle: register, read
// loop (ping/pong only — this stream is server-push), unregister on close.
// Blocks until the connection closes, same contract as
// events.ConnectionManager.HandleConnection.
func (h *Hub) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			h.sendTo(ctx, conn, wsEvent{Type: "pong", At: h.clock.Now()})
		}
	}
}

// broadcast marshals ev once and writes it to every connected client,
// snapshotting the connection set under the lock so a slow write never
// blocks register/unregister.
func (h *Hub) broadcast(ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal ws event", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	ctx := context.Background()
	for _, c := range conns {
		h.writeRaw(ctx, c, payload)
	}
}

func (h *Hub) sendTo(ctx context.Context, conn *websocket.Conn, ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal ws event", "error", err)
		return
	}
	h.writeRaw(ctx, conn, payload)
}

func (h *Hub) writeRaw(ctx context.Context, conn *websocket.Conn, payload []byte) {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		h.log.Warn("ws write failed", "error", err)
	}
}

// CycleRecorded implements scheduler.EventSink. A cycle's start and end are
// both known only once the Scheduler's call returns (spec §5: cycles aren't
// observed mid-flight), so both events are emitted back to back.
func (h *Hub) CycleRecorded(record model.CycleRecord) {
	h.broadcast(wsEvent{
		Type:    "cycle.start",
		Kind:    string(record.AgentKind),
		CycleID: record.ID,
		At:      record.StartedAt,
	})
	h.broadcast(wsEvent{
		Type:    "cycle.end",
		Kind:    string(record.AgentKind),
		CycleID: record.ID,
		Outcome: string(record.Outcome),
		XPDelta: record.XPDelta,
		At:      record.EndedAt,
	})
}

// NotifyProposalCreated implements proposal.ApprovalNotifier.
func (h *Hub) NotifyProposalCreated(_ context.Context, p model.Proposal) {
	h.broadcast(wsEvent{
		Type:       "proposal.created",
		ProposalID: p.ID,
		Risk:       string(p.Risk),
	})
}

// TokenPressure implements the token.pressure push (spec §6.2: "when
// usage_pct ≥ 0.8"). Called by the token-pressure poller in main.go once per
// poll interval for every (agent, provider) pair; the ≥0.8 gate lives here so
// callers don't need to know the threshold.
func (h *Hub) TokenPressure(agent model.AgentKind, provider model.Provider, usagePct float64) {
	if usagePct < 0.8 {
		return
	}
	h.broadcast(wsEvent{
		Type:     "token.pressure",
		Agent:    string(agent),
		Provider: string(provider),
		UsagePct: usagePct,
	})
}
