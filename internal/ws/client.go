package ws

import (
	"encoding/json"
	"time"

	"github.com/vilass86/cardgame/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendQueue  = 64
)

type Client struct {
	Address   string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
	Done      chan struct{}
}

func NewClient(address, sessionID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		Address:   address,
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, sendQueue),
		Hub:       hub,
		Done:      make(chan struct{}),
	}
}

// Run registers the client, queues first frames and blocks until it disconnects.
func (c *Client) Run(first ...Message) {
	c.Hub.Register(c)
	for _, m := range first {
		c.queue(m)
	}
	go c.writePump()
	c.readPump()
}

func (c *Client) queue(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.Hub.deliver(c, b)
}

//read
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(1024)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read error", "error", err, "session_id", c.SessionID)
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			c.queue(Message{Type: MsgError, Error: "invalid message"})
			continue
		}
		switch in.Type {
		case MsgPing:
			c.queue(Message{Type: MsgPong})
		default:
			// watchers are read-only; instructions go over HTTP
			c.queue(Message{Type: MsgError, Error: "unsupported message type"})
		}
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws write error", "error", err, "session_id", c.SessionID)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
