package chat

import (
	"context"
	"sync/atomic"
	"time"

	"course-service/internal/util"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var clientIDCounter atomic.Uint64

// Handler processes inbound frames for a client
type Handler interface {
	JoinRoom(ctx context.Context, c *Client, courseID string) error
	SendMessage(ctx context.Context, c *Client, frame SendMessageFrame) error
}

// Inbound is a client-to-server frame
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JoinRoomFrame is the payload of a joinRoom frame
type JoinRoomFrame struct {
	CourseID string `json:"courseId"`
}

// SendMessageFrame is the payload of a sendMessage frame
type SendMessageFrame struct {
	CourseID string `json:"courseId"`
	UserID   string `json:"userId"`
	Message  string `json:"message"`
}

// ErrorFrame tells a client one of its frames was rejected
type ErrorFrame struct {
	Error string `json:"error"`
}

// Client is one websocket connection. The authenticated user id is fixed at
// upgrade time.
type Client struct {
	id     uint64
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	// guarded by hub.mu
	rooms  map[string]struct{}
	logger *zap.Logger
}

// NewClient creates a client for conn. conn may be nil when the client is
// only used to observe broadcasts.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     clientIDCounter.Add(1),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
		rooms:  make(map[string]struct{}),
		logger: util.GetLogger(),
	}
}

// ID returns the connection id
func (c *Client) ID() uint64 {
	return c.id
}

// UserID returns the authenticated user behind the connection
func (c *Client) UserID() string {
	return c.userID
}

// Outbox returns the frames queued for this client. It is closed when the
// client is unregistered.
func (c *Client) Outbox() <-chan Message {
	return c.send
}

// Reply queues a frame for this client only. Frames are dropped if the
// outbox is full.
func (c *Client) Reply(msg Message) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Serve registers the client, runs its pumps and blocks until the
// connection closes or ctx is done.
func (c *Client) Serve(ctx context.Context, handler Handler) {
	c.hub.Register(c)
	go c.writePump()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	c.readPump(ctx, handler)
}

func (c *Client) readPump(ctx context.Context, handler Handler) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected websocket close", zap.Uint64("client_id", c.id), zap.Error(err))
			}
			return
		}
		c.dispatch(ctx, handler, data)
	}
}

// dispatch handles one inbound frame. Bad frames are logged and answered
// with an error frame; they never close the connection.
func (c *Client) dispatch(ctx context.Context, handler Handler, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.reject("malformed frame", err)
		return
	}

	switch in.Type {
	case FrameJoinRoom:
		var frame JoinRoomFrame
		if err := json.Unmarshal(in.Data, &frame); err != nil {
			c.reject("malformed joinRoom frame", err)
			return
		}
		if err := handler.JoinRoom(ctx, c, frame.CourseID); err != nil {
			c.reject("join failed", err)
		}
	case FrameSendMessage:
		var frame SendMessageFrame
		if err := json.Unmarshal(in.Data, &frame); err != nil {
			c.reject("malformed sendMessage frame", err)
			return
		}
		if err := handler.SendMessage(ctx, c, frame); err != nil {
			c.reject("send failed", err)
		}
	default:
		c.logger.Warn("Unhandled frame type", zap.String("type", in.Type), zap.Uint64("client_id", c.id))
	}
}

func (c *Client) reject(msg string, err error) {
	c.logger.Warn("websocket frame rejected",
		zap.Uint64("client_id", c.id),
		zap.String("user_id", c.userID),
		zap.String("reason", msg),
		zap.Error(err))
	c.Reply(Message{Type: FrameError, Data: ErrorFrame{Error: err.Error()}})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			payload, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("failed to encode frame", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
