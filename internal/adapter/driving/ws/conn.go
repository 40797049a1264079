package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/relayhub/internal/relay"
)

// writeWait bounds how long a single control or data write may block.
const writeWait = 10 * time.Second

// Compile-time interface satisfaction check.
var _ relay.Conn = (*nodeConn)(nil)

// nodeConn adapts a gorilla connection to the hub's Conn interface. gorilla
// permits at most one concurrent writer, while the hub writes from other
// nodes' read loops and from the liveness monitor, so every write serializes
// on the mutex.
type nodeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newNodeConn(ws *websocket.Conn) *nodeConn {
	return &nodeConn{ws: ws}
}

func (c *nodeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *nodeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *nodeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.ws.Close()
}

func (c *nodeConn) Terminate() error {
	return c.ws.Close()
}
