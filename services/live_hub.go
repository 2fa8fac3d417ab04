package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/milestone"
	"waterFastAPI/internal/progress"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/types/fast"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

type FrameType string

const (
	FrameProgress  FrameType = "progress"
	FrameIdle      FrameType = "idle"
	FrameMilestone FrameType = "milestone"
)

// LiveFrame is one message on the live progress socket.
type LiveFrame struct {
	Type     FrameType          `json:"type"`
	Fast     *fast.Record       `json:"fast,omitempty"`
	Progress *progress.Progress `json:"progress,omitempty"`
	Event    *milestone.Event   `json:"event,omitempty"`
}

// LiveHub streams progress of the current fast to websocket clients, one
// frame per tick, plus a frame for each milestone crossed while connected.
type LiveHub struct {
	source store.Source
	fasts  *FastService
	clock  clock.Clock
	tick   time.Duration

	mu      sync.Mutex
	clients map[*LiveClient]struct{}
	wg      sync.WaitGroup
}

func NewLiveHub(source store.Source, fasts *FastService, c clock.Clock, tick time.Duration) *LiveHub {
	if tick <= 0 {
		tick = time.Second
	}
	return &LiveHub{
		source:  source,
		fasts:   fasts,
		clock:   clock.NewMonotonic(c),
		tick:    tick,
		clients: make(map[*LiveClient]struct{}),
	}
}

// LiveClient sits between one websocket and the hub.
type LiveClient struct {
	hub    *LiveHub
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	eval   *milestone.Evaluator
	fastID string
}

// Serve registers conn for userID and starts its pumps. It returns once the
// store subscription is open; the connection is closed when the peer goes
// away or the hub stops.
func (h *LiveHub) Serve(userID string, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(context.Background())
	updates, err := h.source.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		return err
	}

	c := &LiveClient{
		hub:    h,
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 16),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	liveClients.Inc()
	logger.Debug("live client connected", "user", userID)

	h.wg.Add(3)
	go func() { defer h.wg.Done(); c.run(updates) }()
	go func() { defer h.wg.Done(); c.WritePump() }()
	go func() { defer h.wg.Done(); c.ReadPump() }()
	return nil
}

func (h *LiveHub) unregister(c *LiveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		liveClients.Dec()
		logger.Debug("live client disconnected", "user", c.UserID)
	}
}

// Clients returns the number of connected clients.
func (h *LiveHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop disconnects every client and waits for their goroutines.
func (h *LiveHub) Stop() {
	h.mu.Lock()
	for c := range h.clients {
		c.cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// run owns the latest record and the client's evaluator. It is the only
// writer to Send and closes it on exit.
func (c *LiveClient) run(updates <-chan *fast.Record) {
	defer func() {
		c.hub.unregister(c)
		close(c.Send)
	}()

	ticker := time.NewTicker(c.hub.tick)
	defer ticker.Stop()

	var current *fast.Record
	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				return
			}
			current = rec
			c.emit(current)

		case <-ticker.C:
			if current != nil {
				c.emit(current)
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *LiveClient) emit(rec *fast.Record) {
	if rec == nil {
		c.fastID = ""
		c.push(LiveFrame{Type: FrameIdle})
		return
	}

	p, err := c.hub.fasts.Progress(rec, c.hub.clock.Now())
	if err != nil {
		logger.Warn("live: invalid progress", "fast", rec.ID, "err", err)
		return
	}
	elapsed := p.ElapsedHours()
	var events []milestone.Event
	switch {
	case c.eval == nil:
		c.eval = milestone.New(rec.PlannedDurationHours)
		c.eval.Prime(elapsed)
	case c.fastID != rec.ID:
		c.eval.Reset(rec.PlannedDurationHours)
		c.eval.Prime(elapsed)
	default:
		events = c.eval.Evaluate(elapsed)
	}
	c.fastID = rec.ID

	c.push(LiveFrame{Type: FrameProgress, Fast: rec, Progress: &p})
	for _, ev := range events {
		c.push(LiveFrame{Type: FrameMilestone, Fast: rec, Event: &ev})
	}
}

// push drops the frame if the client is not keeping up.
func (c *LiveClient) push(frame LiveFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("live: failed to marshal frame", "err", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		logger.Debug("live: dropping frame for slow client", "user", c.UserID, "type", frame.Type)
	}
}

// ReadPump discards anything the client sends and tears the client down when
// the connection fails.
func (c *LiveClient) ReadPump() {
	defer func() {
		c.cancel()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("live: read error", "user", c.UserID, "err", err)
			}
			return
		}
	}
}

// WritePump handles messages going to the client.
func (c *LiveClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
