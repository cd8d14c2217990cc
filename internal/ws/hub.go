package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/kiwari-pos/engine/internal/enum"
	"github.com/kiwari-pos/engine/internal/notify"
	"go.uber.org/zap"
)

var (
	ErrHubStopped  = errors.New("ws: hub stopped")
	ErrUnknownRoom = errors.New("ws: unknown room")
)

// Rooms lists the rooms a client may subscribe to.
var Rooms = []string{enum.RoomOrders, enum.RoomInventory}

func validRoom(room string) bool {
	for _, r := range Rooms {
		if r == room {
			return true
		}
	}
	return false
}

type roomMessage struct {
	room    string
	message []byte
}

// Hub maintains the set of active clients per room and broadcasts messages
// to them. It satisfies notify.Publisher.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for room, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[msg.room] {
				select {
				case client.send <- msg.message:
				default:
					h.logger.Warn("ws client too slow, dropping", zap.String("room", msg.room))
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
}

// Broadcast queues a raw message for every client in room.
func (h *Hub) Broadcast(ctx context.Context, room string, message []byte) error {
	if !validRoom(room) {
		return ErrUnknownRoom
	}
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- roomMessage{room: room, message: message}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends e to the room it names; events without a room go to orders.
func (h *Hub) Publish(ctx context.Context, e notify.Event) error {
	room := e.Room
	if room == "" {
		room = enum.RoomOrders
	}
	message, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return h.Broadcast(ctx, room, message)
}

// Subscribers reports how many clients are in room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
