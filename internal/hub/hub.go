package hub

import (
	"encoding/json"
	"sync"

	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/metrics"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
)

// RoomObserver is told when a room gains its first member or loses its last.
// Callbacks run outside the hub lock and may be invoked concurrently.
type RoomObserver interface {
	RoomOpened(key domain.RoomKey)
	RoomClosed(key domain.RoomKey)
}

// Hub is the connection registry and broadcast dispatcher. All membership
// changes are serialized by mu; broadcasts enqueue under the read lock so a
// connection is either fully registered or fully gone while they run.
type Hub struct {
	clients  map[string]*Client                    // clientID -> client
	rooms    map[domain.RoomKey]map[string]*Client // roomKey -> clientID -> client
	mu       sync.RWMutex
	observer RoomObserver
	config   config.WebSocketConfig
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[domain.RoomKey]map[string]*Client),
		config:  cfg,
	}
}

// SetObserver installs the room observer. Call before serving traffic.
func (h *Hub) SetObserver(o RoomObserver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = o
}

// Register binds identity to the client and makes it live.
func (h *Hub) Register(client *Client, identity domain.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.isClosed() {
		return domain.ErrConnectionClosed
	}
	if err := client.Session.Authenticate(identity); err != nil {
		return err
	}
	h.clients[client.ID] = client
	metrics.ConnectionsActive.Set(float64(len(h.clients)))

	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Str(log.FieldUserID, identity.UserID).Msg("client registered")
	return nil
}

// Join adds the client to a room. Joining twice is a no-op. created reports
// whether the room did not exist before.
func (h *Hub) Join(client *Client, key domain.RoomKey, conv domain.Conversation) (created bool, err error) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		if client.isClosed() {
			return false, domain.ErrConnectionClosed
		}
		return false, domain.ErrUnauthenticated
	}

	added, err := client.Session.JoinRoom(key, conv)
	if err != nil {
		h.mu.Unlock()
		return false, err
	}
	if added {
		members, ok := h.rooms[key]
		if !ok {
			members = make(map[string]*Client)
			h.rooms[key] = members
			created = true
		}
		members[client.ID] = client
	}
	observer := h.observer
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldClientID, client.ID).Str(log.FieldRoomKey, key.String()).Bool("new_member", added).Msg("client joined room")

	if created && observer != nil {
		observer.RoomOpened(key)
	}
	return created, nil
}

// Unregister removes the client from every room, prunes empty rooms and
// closes the client. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	rooms, first := client.Session.Close()
	var pruned []domain.RoomKey
	if _, ok := h.clients[client.ID]; ok {
		for _, key := range rooms {
			members, ok := h.rooms[key]
			if !ok {
				continue
			}
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, key)
				pruned = append(pruned, key)
			}
		}
		delete(h.clients, client.ID)
	}
	client.close()
	observer := h.observer
	metrics.ConnectionsActive.Set(float64(len(h.clients)))
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	if first {
		l := log.L()
		l.Debug().Str(log.FieldClientID, client.ID).Int("rooms", len(rooms)).Msg("client unregistered")
	}
	if observer != nil {
		for _, key := range pruned {
			observer.RoomClosed(key)
		}
	}
}

// MembersOf returns a snapshot of the clients in a room.
func (h *Hub) MembersOf(key domain.RoomKey) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[key]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Broadcast delivers message to every client currently in the room and
// returns how many clients it was queued for. Clients whose outbound queue
// is full are evicted.
func (h *Hub) Broadcast(key domain.RoomKey, message interface{}) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}

	var delivered int
	var slow []*Client

	h.mu.RLock()
	for _, c := range h.rooms[key] {
		switch c.enqueue(data) {
		case enqueueOK:
			delivered++
		case enqueueFull:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	metrics.BroadcastDeliveries.Add(float64(delivered))
	for _, c := range slow {
		h.evict(c)
	}
	return delivered, nil
}

// CloseAll unregisters every live connection. Each WritePump then sends a
// close frame and shuts its socket. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) RoomSize(key domain.RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}

// ActiveRooms returns the keys of all non-empty rooms.
func (h *Hub) ActiveRooms() []domain.RoomKey {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.RoomKey, 0, len(h.rooms))
	for k := range h.rooms {
		out = append(out, k)
	}
	return out
}

func (h *Hub) evict(c *Client) {
	l := log.L()
	l.Warn().Str(log.FieldClientID, c.ID).Msg("evicting slow client")
	metrics.SlowClientEvictions.Inc()
	h.Unregister(c)
	c.closeConn()
}
