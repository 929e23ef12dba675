package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/gorilla/websocket"
	"github.com/samber/mo"

	"github.com/KonishchevDmitry/newsfeedd/internal/bridge"
	"github.com/KonishchevDmitry/newsfeedd/internal/util"
)

const (
	clientBufferSize = 16
	maxMessageSize   = 1024 * 1024

	socketWriteTimeout = 10 * time.Second
	socketReadTimeout  = time.Minute
	socketPingInterval = socketReadTimeout / 2
)

var clientIDs atomic.Uint64

type client struct {
	id         uint64
	connection *websocket.Conn
	send       chan []byte
}

func newClient(connection *websocket.Conn) *client {
	return &client{
		id:         clientIDs.Add(1),
		connection: connection,
		send:       make(chan []byte, clientBufferSize),
	}
}

func (c *client) String() string {
	return fmt.Sprintf("#%d (%s)", c.id, c.connection.RemoteAddr())
}

// read passes client commands to the bridge until the connection is closed.
func (c *client) read(ctx context.Context, commands *bridge.Bridge) {
	c.connection.SetReadLimit(maxMessageSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(socketReadTimeout))
	c.connection.SetPongHandler(func(string) error {
		return c.connection.SetReadDeadline(time.Now().Add(socketReadTimeout))
	})

	for {
		_, message, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.L(ctx).Warnf("%s client has disconnected: %s.", c, err)
			} else {
				logging.L(ctx).Debugf("%s client has disconnected.", c)
			}
			return
		}

		command, err := bridge.DecodeCommand(message)
		if err != nil {
			logging.L(ctx).Warnf("Got an invalid message from %s client: %s.", c, err)
			continue
		}

		logging.L(ctx).Debugf("Got %s from %s client.", command.Notification(), c)
		if err := commands.Send(ctx, command); err != nil {
			return
		}
	}
}

// write sends queued messages to the client until its queue is closed.
func (c *client) write(ctx context.Context) {
	ticker := time.NewTicker(socketPingInterval)
	defer ticker.Stop()

	defer func() {
		if err := c.connection.Close(); err != nil {
			logging.L(ctx).Debugf("Failed to close %s client connection: %s.", c, err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.connection.SetWriteDeadline(time.Now().Add(socketWriteTimeout))

			if !ok {
				_ = c.connection.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := c.connection.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.L(ctx).Warnf("Failed to send a message to %s client: %s.", c, err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(socketWriteTimeout)
			if err := c.connection.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logging.L(ctx).Warnf("Failed to ping %s client: %s.", c, err)
				return
			}
		}
	}
}

// hub fans bridge events out to all connected clients.
type hub struct {
	lock     util.GuardedLock
	clients  map[*client]struct{}
	snapshot mo.Option[[]byte]
	closed   bool
}

func newHub() *hub {
	return &hub{
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) run(ctx context.Context, events <-chan bridge.Event) {
	defer h.closeAll(ctx)

	for {
		select {
		case event := <-events:
			h.broadcast(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

func (h *hub) broadcast(ctx context.Context, event bridge.Event) {
	message, err := bridge.Encode(event)
	if err != nil {
		logging.L(ctx).Errorf("Failed to encode %s event: %s.", event.Notification(), err)
		return
	}

	lock := h.lock.Lock()
	defer lock.Unlock()

	if _, ok := event.(bridge.ItemsSnapshot); ok {
		h.snapshot = mo.Some(message)
	}

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			logging.L(ctx).Warnf("%s client channel is full. Dropping %s event.", client, event.Notification())
		}
	}
}

// add registers the client and queues the latest snapshot for it. Returns false if the hub is already closed.
func (h *hub) add(ctx context.Context, client *client) bool {
	lock := h.lock.Lock()
	defer lock.Unlock()

	if h.closed {
		return false
	}

	h.clients[client] = struct{}{}
	if snapshot, ok := h.snapshot.Get(); ok {
		client.send <- snapshot
	}

	logging.L(ctx).Infof("%s client has connected (%d clients).", client, len(h.clients))
	return true
}

func (h *hub) remove(client *client) {
	lock := h.lock.Lock()
	defer lock.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *hub) count() int {
	lock := h.lock.RLock()
	defer lock.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll(ctx context.Context) {
	lock := h.lock.Lock()
	defer lock.Unlock()

	h.closed = true
	logging.L(ctx).Infof("Disconnecting %d clients...", len(h.clients))
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
