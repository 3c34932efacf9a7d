package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/events"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/metrics"
)

// Broadcast is the room token that addresses every connected client.
const Broadcast = ""

const bridgeTimeout = 2 * time.Second

// Frame is a serialized event addressed to a room.
type Frame struct {
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Bridge relays frames between hub instances. Run calls deliver for every
// frame published by any instance, including this one.
type Bridge interface {
	Publish(ctx context.Context, frame Frame) error
	Run(ctx context.Context, deliver func(Frame)) error
}

type membership struct {
	client *Client
	room   string
	done   chan struct{}
}

type directFrame struct {
	client  *Client
	payload []byte
}

type registration struct {
	client *Client
	// count receives the number of live connections the user has after
	// the change.
	count chan int
}

// Hub maintains the set of active clients and the rooms they joined. All
// of its maps are owned by the Run goroutine.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Room token to subscribed clients.
	rooms map[string]map[*Client]struct{}

	// Live connection count per user id.
	online map[int]int

	// Outbound frames to deliver locally.
	deliver chan Frame

	// Register requests from the clients.
	register chan registration

	// Unregister requests from clients.
	unregister chan registration

	join  chan membership
	leave chan membership

	// Frames addressed to a single client.
	direct chan directFrame

	bridge Bridge

	// Set while the bridge subscriber is running. Publishes bypass the
	// bridge when it is down.
	bridgeUp atomic.Bool
	logger   *zap.Logger

	// Closed when Run returns.
	quit chan struct{}
}

func NewHub(bridge Bridge, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		online:     make(map[int]int),
		deliver:    make(chan Frame),
		register:   make(chan registration),
		unregister: make(chan registration),
		join:       make(chan membership),
		leave:      make(chan membership),
		direct:     make(chan directFrame),
		bridge:     bridge,
		logger:     logging.OrNop(logger),
		quit:       make(chan struct{}),
	}
}

// Run processes hub requests until ctx is done. With a bridge configured it
// also relays frames from other instances.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	if h.bridge != nil {
		h.bridgeUp.Store(true)
		go func() {
			err := h.bridge.Run(ctx, h.deliverLocal)
			h.bridgeUp.Store(false)
			if ctx.Err() == nil {
				h.logger.Error("Fan-out bridge stopped, delivering locally", zap.Error(err))
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		case r := <-h.register:
			h.clients[r.client] = struct{}{}
			metrics.WSConnections.Inc()
			if r.client.userID != 0 {
				h.online[r.client.userID]++
			}
			r.count <- h.online[r.client.userID]
		case r := <-h.unregister:
			if _, ok := h.clients[r.client]; ok {
				h.remove(r.client)
			}
			r.count <- h.online[r.client.userID]
		case m := <-h.join:
			if _, ok := h.clients[m.client]; !ok {
				close(m.done)
				continue
			}
			subs := h.rooms[m.room]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.rooms[m.room] = subs
			}
			subs[m.client] = struct{}{}
			m.client.rooms[m.room] = struct{}{}
			close(m.done)
		case m := <-h.leave:
			h.leaveRoom(m.client, m.room)
			close(m.done)
		case frame := <-h.deliver:
			h.fanOut(frame)
		case d := <-h.direct:
			if _, ok := h.clients[d.client]; !ok {
				continue
			}
			select {
			case d.client.send <- d.payload:
			default:
				metrics.FanoutDropped.Inc()
				h.remove(d.client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	for room := range client.rooms {
		h.leaveRoom(client, room)
	}
	delete(h.clients, client)
	close(client.send)
	metrics.WSConnections.Dec()
	if client.userID != 0 {
		if h.online[client.userID]--; h.online[client.userID] <= 0 {
			delete(h.online, client.userID)
		}
	}
}

func (h *Hub) leaveRoom(client *Client, room string) {
	if subs, ok := h.rooms[room]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

func (h *Hub) fanOut(frame Frame) {
	targets := h.clients
	if frame.Room != Broadcast {
		targets = h.rooms[frame.Room]
	}
	for client := range targets {
		select {
		case client.send <- frame.Payload:
			metrics.FanoutDelivered.Inc()
		default:
			metrics.FanoutDropped.Inc()
			h.logger.Warn("Dropping slow client", zap.String("conn_id", client.id), zap.Int("user_id", client.userID))
			h.remove(client)
		}
	}
}

// Register adds the client and returns its user's live connection count.
func (h *Hub) Register(client *Client) int {
	return h.requestCount(h.register, client)
}

// Unregister removes the client and returns its user's remaining live
// connection count.
func (h *Hub) Unregister(client *Client) int {
	return h.requestCount(h.unregister, client)
}

func (h *Hub) requestCount(ch chan registration, client *Client) int {
	r := registration{client: client, count: make(chan int, 1)}
	select {
	case ch <- r:
		return <-r.count
	case <-h.quit:
		return 0
	}
}

// Join subscribes the client to room. Joining twice is a no-op.
func (h *Hub) Join(client *Client, room string) {
	h.requestMembership(h.join, client, room)
}

// Leave unsubscribes the client from room. Leaving a room the client is not
// in is a no-op.
func (h *Hub) Leave(client *Client, room string) {
	h.requestMembership(h.leave, client, room)
}

func (h *Hub) requestMembership(ch chan membership, client *Client, room string) {
	m := membership{client: client, room: room, done: make(chan struct{})}
	select {
	case ch <- m:
		<-m.done
	case <-h.quit:
	}
}

// Publish delivers event to every client in room. Delivery is best-effort.
func (h *Hub) Publish(room, event string, data any) {
	payload, err := events.Encode(event, data)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	frame := Frame{Room: room, Payload: payload}

	if h.bridge != nil && h.bridgeUp.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		err := h.bridge.Publish(ctx, frame)
		cancel()
		if err == nil {
			return
		}
		h.logger.Warn("Bridge publish failed, delivering locally", zap.String("room", room), zap.Error(err))
	}
	h.deliverLocal(frame)
}

// Broadcast delivers event to every connected client.
func (h *Hub) Broadcast(event string, data any) {
	h.Publish(Broadcast, event, data)
}

// SendTo delivers event to a single client on this instance.
func (h *Hub) SendTo(client *Client, event string, data any) {
	payload, err := events.Encode(event, data)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.direct <- directFrame{client: client, payload: payload}:
	case <-h.quit:
	}
}

func (h *Hub) deliverLocal(frame Frame) {
	select {
	case h.deliver <- frame:
	case <-h.quit:
	}
}
