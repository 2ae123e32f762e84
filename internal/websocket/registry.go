package websocket

import (
	"log/slog"
	"sort"
	"sync"

	"campus-market/internal/observability"
)

// Registry maps user ids to their live connections. A user id is present
// only while it has at least one registered connection.
//
// Deliver holds the read lock and never blocks: a connection whose queue is
// full is treated as a slow consumer and deregistered afterwards.
type Registry struct {
	mu       sync.RWMutex
	users    map[int64]map[*Client]struct{}
	conns    int
	shutdown bool
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[int64]map[*Client]struct{}),
	}
}

// Register adds an accepted connection under its user id.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		close(client.send)
		return
	}

	set, ok := r.users[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.users[client.userID] = set
	}
	if _, dup := set[client]; dup {
		return
	}
	set[client] = struct{}{}
	r.conns++
	r.recordGauges()

	slog.Info("Client registered",
		slog.Int64("user_id", client.userID),
		slog.String("conn_id", client.connID),
		slog.Int("user_connections", len(set)))
}

// Deregister removes client and closes its outbound queue. Calling it for a
// client that is not registered, or twice, does nothing.
func (r *Registry) Deregister(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}

	delete(set, client)
	if len(set) == 0 {
		delete(r.users, client.userID)
	}
	close(client.send)
	r.conns--
	r.recordGauges()

	slog.Info("Client deregistered",
		slog.Int64("user_id", client.userID),
		slog.String("conn_id", client.connID))
}

// Deliver queues payload on every connection of userID and returns how many
// connections accepted it. Unknown users are a no-op.
func (r *Registry) Deliver(userID int64, payload []byte) int {
	var (
		delivered int
		slow      []*Client
	)

	r.mu.RLock()
	for client := range r.users[userID] {
		select {
		case client.send <- payload:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	r.mu.RUnlock()

	for _, client := range slow {
		observability.WebSocketMessagesDropped.WithLabelValues(observability.DropSlowConsumer).Inc()
		slog.Warn("Dropping slow consumer",
			slog.Int64("user_id", client.userID),
			slog.String("conn_id", client.connID))
		r.Deregister(client)
	}

	return delivered
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

func (r *Registry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// OnlineUsers returns the ids of every connected user in ascending order.
func (r *Registry) OnlineUsers() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Shutdown closes every outbound queue, which makes each write pump send a
// close frame. Later registrations are closed immediately.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return
	}
	r.shutdown = true

	for userID, set := range r.users {
		for client := range set {
			close(client.send)
		}
		delete(r.users, userID)
	}
	closed := r.conns
	r.conns = 0
	r.recordGauges()

	slog.Info("Registry shutdown complete", slog.Int("connections_closed", closed))
}

// recordGauges must be called with mu held for writing.
func (r *Registry) recordGauges() {
	observability.WebSocketConnectionsActive.Set(float64(r.conns))
	observability.WebSocketUsersOnline.Set(float64(len(r.users)))
}
