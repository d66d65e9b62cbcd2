// Package hub keeps the live realtime connections of the process, groups them
// into per-user rooms and pushes messages to a user's room.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/room"
	rStorage "github.com/digitalaxis/axisgate/internal/storage/room"
)

var ErrClientNotConnected = errors.New("client is not connected")

// Message is what a client receives for every push.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Config struct {
	// Rooms stores the rooms by name.
	Rooms rStorage.Storage

	// Broker fans pushes out to every process. Nil delivers in-process only.
	Broker Broker

	// SendBuffer is the outbound queue length of new clients.
	SendBuffer int

	Logger *zap.Logger
}

// Hub is created once per process and handed to whoever needs to publish.
type Hub struct {
	clients    map[string]*Client
	rooms      rStorage.Storage
	broker     Broker
	sendBuffer int

	// localOnly is set when the broker subscription failed.
	localOnly atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	mtx *sync.RWMutex

	logger *zap.Logger
}

func New(config *Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		rooms:      config.Rooms,
		broker:     config.Broker,
		sendBuffer: config.SendBuffer,
		ctx:        ctx,
		cancel:     cancel,
		ready:      make(chan struct{}),
		mtx:        &sync.RWMutex{},
		logger:     config.Logger,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// NewClient creates a client sized with the hub's send buffer. It is not
// registered until Connect.
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return NewClient(conn, h.sendBuffer)
}

// Connect registers c. The client sits in no room until it joins one.
func (h *Hub) Connect(c *Client) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.clients[c.ID()] = c
	h.logger.Info("Client connected", zap.String("connID", c.ID()))
}

// Join moves c into userID's room, leaving any room it was in before.
func (h *Hub) Join(c *Client, userID string) (string, error) {
	name := room.NameForUser(userID)

	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.clients[c.ID()]; !ok {
		return "", ErrClientNotConnected
	}
	if c.room == name {
		return name, nil
	}
	if c.room != "" {
		h.leaveLocked(c)
	}

	h.rooms.GetOrCreate(name).Add(c)
	c.room = name

	h.logger.Info("Client joined room", zap.String("connID", c.ID()), zap.String("room", name))
	return name, nil
}

// Disconnect drops c from its room and the registry and closes its queue.
// Calling it again is a no-op.
func (h *Hub) Disconnect(c *Client) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.clients[c.ID()]; !ok {
		return
	}
	h.leaveLocked(c)
	delete(h.clients, c.ID())
	c.close()

	h.logger.Info("Client disconnected", zap.String("connID", c.ID()))
}

func (h *Hub) leaveLocked(c *Client) {
	if c.room == "" {
		return
	}
	if r, err := h.rooms.Get(c.room); err == nil {
		if r.Remove(c.ID()) == 0 {
			h.rooms.DeleteIfEmpty(c.room)
		}
	}
	c.room = ""
}

// Publish pushes data under event to every connection in userID's room.
// Nobody listening is not an error.
func (h *Hub) Publish(ctx context.Context, userID, event string, data any) error {
	payload, err := encodeMessage(event, data)
	if err != nil {
		return err
	}
	name := room.NameForUser(userID)

	if h.broker == nil || h.localOnly.Load() {
		n := h.deliver(name, payload)
		h.logger.Debug("Message published", zap.String("room", name), zap.String("event", event), zap.Int("delivered", n))
		return nil
	}
	if err := h.broker.Publish(ctx, BrokerMessage{Room: name, Payload: payload}); err != nil {
		return fmt.Errorf("publish to %s: %w", name, err)
	}
	return nil
}

// Notify queues a message for a single client, outside any room.
func (h *Hub) Notify(c *Client, event string, data any) error {
	payload, err := encodeMessage(event, data)
	if err != nil {
		return err
	}
	if !c.Send(payload) {
		return fmt.Errorf("notify %s: queue full or closed", c.ID())
	}
	return nil
}

func (h *Hub) deliver(roomName string, payload []byte) int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	r, err := h.rooms.Get(roomName)
	if err != nil {
		return 0
	}
	return r.Broadcast(payload)
}

// RoomOf returns the room c sits in, or "".
func (h *Hub) RoomOf(c *Client) string {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return c.room
}

// Members returns how many connections sit in userID's room.
func (h *Hub) Members(userID string) int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	r, err := h.rooms.Get(room.NameForUser(userID))
	if err != nil {
		return 0
	}
	return r.Len()
}

// Stats reports the number of connected clients and non-empty rooms.
func (h *Hub) Stats() (clients, rooms int) {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.clients), h.rooms.Len()
}

// Ready is closed once the hub receives pushes.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Start consumes the broker until Stop. Without a broker it only waits.
func (h *Hub) Start() {
	if h.broker == nil {
		close(h.ready)
		<-h.ctx.Done()
		return
	}

	msgs, err := h.broker.Subscribe(h.ctx)
	if err != nil {
		h.logger.Error("Broker subscription failed, delivering locally", zap.Error(err))
		h.localOnly.Store(true)
		close(h.ready)
		<-h.ctx.Done()
		return
	}
	close(h.ready)

	for msg := range msgs {
		n := h.deliver(msg.Room, msg.Payload)
		h.logger.Debug("Broker message delivered", zap.String("room", msg.Room), zap.Int("delivered", n))
	}
}

// Stop ends Start and closes every client.
func (h *Hub) Stop() {
	h.cancel()

	h.mtx.Lock()
	for id, c := range h.clients {
		h.leaveLocked(c)
		c.close()
		delete(h.clients, id)
	}
	h.mtx.Unlock()

	if h.broker != nil {
		if err := h.broker.Close(); err != nil {
			h.logger.Error("Failed to close broker", zap.Error(err))
		}
	}
}

func encodeMessage(event string, data any) ([]byte, error) {
	msg := Message{Event: event}
	if data != nil {
		raw, ok := data.(json.RawMessage)
		if !ok {
			var err error
			raw, err = json.Marshal(data)
			if err != nil {
				return nil, fmt.Errorf("encode %s data: %w", event, err)
			}
		}
		msg.Data = raw
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", event, err)
	}
	return payload, nil
}
