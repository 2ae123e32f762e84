package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"campus-market/internal/domain"
	"campus-market/internal/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	// maxMessageSize fits the longest valid payload even when every rune is
	// sent as an escaped surrogate pair. Larger frames are discarded and
	// dropped; only frames beyond maxFrameSize close the connection.
	maxMessageSize = 16 << 10
	maxFrameSize   = 1 << 20
	sendBufferSize = 256
	persistTimeout = 5 * time.Second

	// Inbound budget per connection. The read loop waits for a token, so a
	// flooding client is slowed down rather than dropped.
	inboundRate  = rate.Limit(10)
	inboundBurst = 20
)

// State is the lifecycle of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MessageSender persists a chat message, assigning its id and timestamp.
type MessageSender interface {
	SendMessage(ctx context.Context, msg *domain.ChatMessage) error
}

// Client is one WebSocket connection bound to a user id.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	send     chan []byte
	userID   int64
	connID   string
	messages MessageSender
	limiter  *rate.Limiter
	log      *slog.Logger

	// enforceSender drops payloads whose sender_id is not the bound user.
	enforceSender bool

	state     atomic.Int32
	writeMu   sync.Mutex
	closed    atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
}

func NewClient(ctx context.Context, registry *Registry, conn *websocket.Conn, userID int64,
	messages MessageSender, enforceSender bool) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	connID := uuid.NewString()

	return &Client{
		registry:      registry,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		userID:        userID,
		connID:        connID,
		messages:      messages,
		limiter:       rate.NewLimiter(inboundRate, inboundBurst),
		log:           slog.With(slog.Int64("user_id", userID), slog.String("conn_id", connID)),
		enforceSender: enforceSender,
		ctx:           clientCtx,
		ctxCancel:     cancel,
	}
}

func (c *Client) UserID() int64 { return c.userID }

func (c *Client) ConnID() string { return c.connID }

func (c *Client) State() State { return State(c.state.Load()) }

// Start registers the client and runs both pumps. The read pump owns
// deregistration.
func (c *Client) Start() {
	c.state.Store(int32(StateOpen))
	c.registry.Register(c)
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump processes inbound frames strictly in receipt order until the
// peer closes, a read fails or the loop panics.
func (c *Client) ReadPump() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Panic in read loop",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
		c.state.Store(int32(StateClosed))
		c.ctxCancel()
		c.registry.Deregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return
		}

		_, r, err := c.conn.NextReader()
		if err == nil {
			var data []byte
			data, err = readPayload(r)
			if errors.Is(err, domain.ErrProtocol) {
				c.drop(observability.DropProtocol, err)
				continue
			}
			if err == nil {
				c.handleMessage(data)
				continue
			}
		}

		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			c.log.Warn("WebSocket read error", slog.String("error", err.Error()))
		}
		return
	}
}

// readPayload reads one frame. A frame over maxMessageSize is drained and
// reported as a protocol error so the connection stays usable.
func readPayload(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxMessageSize {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrProtocol, maxMessageSize)
	}
	return data, nil
}

// handleMessage persists one payload and fans it out to both participants.
// Bad payloads and storage failures drop the message; the connection stays open.
func (c *Client) handleMessage(data []byte) {
	in, err := DecodeInbound(data)
	if err != nil {
		c.drop(observability.DropProtocol, err)
		return
	}
	if c.enforceSender && int64(in.SenderID) != c.userID {
		c.drop(observability.DropProtocol,
			fmt.Errorf("%w: sender_id %d does not match connection", domain.ErrProtocol, in.SenderID))
		return
	}

	msg := in.ChatMessage()

	ctx, cancel := context.WithTimeout(c.ctx, persistTimeout)
	err = c.messages.SendMessage(ctx, msg)
	cancel()
	if err != nil {
		reason := observability.DropStorage
		if errors.Is(err, domain.ErrInvalidInput) {
			reason = observability.DropProtocol
		}
		c.drop(reason, err)
		return
	}

	payload, err := json.Marshal(NewOutboundMessage(msg))
	if err != nil {
		c.drop(observability.DropProtocol, err)
		return
	}

	n := c.registry.Deliver(msg.SenderID, payload)
	observability.WebSocketMessagesSent.WithLabelValues("sender").Add(float64(n))
	if msg.ReceiverID != msg.SenderID {
		n = c.registry.Deliver(msg.ReceiverID, payload)
		observability.WebSocketMessagesSent.WithLabelValues("receiver").Add(float64(n))
	}
}

func (c *Client) drop(reason string, err error) {
	observability.WebSocketMessagesDropped.WithLabelValues(reason).Inc()
	c.log.Warn("Dropped inbound message",
		slog.String("reason", reason),
		slog.String("error", err.Error()))
}

// WritePump owns every write to the socket: queued payloads, pings, and
// the close frame once the registry closes the queue.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = c.writeMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection closes the socket once, which also unblocks a pending read.
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
