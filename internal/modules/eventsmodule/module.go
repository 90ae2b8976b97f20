// Package eventsmodule streams the internal event bus over WebSocket so
// UIs can follow scans, jobs, and root switches live.
package eventsmodule

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/events"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.events"
	ModuleName = "Event Feed"

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second

	// clientBuffer bounds per-client queued events; slow clients drop.
	clientBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Module fans bus events out to connected WebSocket clients.
type Module struct {
	mu      sync.Mutex
	clients map[*client]bool
	unsub   func()
}

type client struct {
	conn *websocket.Conn
	send chan events.Event
}

// Register registers the events module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return false }

func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error {
	m.clients = make(map[*client]bool)

	bus := events.GetGlobalEventBus()
	if bus == nil {
		logger.Warn("Event feed started without a global bus; feed will be silent")
		return nil
	}
	m.unsub = bus.SubscribeAll(m.broadcast)
	return nil
}

// Shutdown detaches from the bus and closes every client.
func (m *Module) Shutdown(ctx context.Context) error {
	if m.unsub != nil {
		m.unsub()
	}
	m.mu.Lock()
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()
	for _, c := range clients {
		m.drop(c)
	}
	return nil
}

func (m *Module) broadcast(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.clients {
		select {
		case c.send <- e:
		default:
			// Slow client: drop the event rather than block the bus.
		}
	}
}

// RegisterRoutes wires the WebSocket endpoint.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/events/ws", m.serveWS)
}

func (m *Module) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("WebSocket upgrade failed: %v", err)
		return
	}

	cl := &client{conn: conn, send: make(chan events.Event, clientBuffer)}
	m.mu.Lock()
	m.clients[cl] = true
	m.mu.Unlock()

	go m.writePump(cl)
	m.readPump(cl)
}

func (m *Module) writePump(cl *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteJSON(e); err != nil {
				m.drop(cl)
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.drop(cl)
				return
			}
		}
	}
}

// readPump discards client messages and notices disconnects.
func (m *Module) readPump(cl *client) {
	defer m.drop(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *Module) drop(cl *client) {
	m.mu.Lock()
	if m.clients[cl] {
		delete(m.clients, cl)
		close(cl.send)
	}
	m.mu.Unlock()
	cl.conn.Close()
}
