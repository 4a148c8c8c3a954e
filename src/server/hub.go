package server

import (
	"encoding/json"
	"net/http"
	"time"

	"finboard/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *DashboardServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.clientTally.Store(int64(len(s.clients)))

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				s.clientTally.Store(int64(len(s.clients)))
			}

		case message, ok := <-s.broadcast:
			if !ok {
				// Server shutting down
				for client := range s.clients {
					close(client.send)
				}
				s.clients = make(map[*Client]struct{})
				s.clientTally.Store(0)
				return
			}

			for client := range s.clients {
				if !client.wants(message.WidgetID) {
					continue
				}
				select {
				case client.send <- message:
					// Message sent successfully
				default:
					// Client too slow, disconnect to prevent Hub blocking
					delete(s.clients, client)
					close(client.send)
					s.clientTally.Store(int64(len(s.clients)))
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) clientCount() int {
	return int(s.clientTally.Load())
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Push is the session sink: it queues one push message for broadcast. The
// send never blocks a session's aggregation path; when the queue is full the
// message is dropped and counted against the log.
func (s *DashboardServer) Push(msg models.MPushMessage) {
	defer func() {
		// The broadcast channel closes during shutdown; a late settle-timer
		// flush must not take the process down.
		_ = recover()
	}()

	select {
	case s.broadcast <- &msg:
	default:
		s.Logger.Warning("Push queue full, dropping %s message for widget %s", msg.Type, msg.WidgetID)
	}
}

// -----------------------------------------------------------------------------

// Broadcast pushes an arbitrary payload wrapped as a dataset message.
func (s *DashboardServer) Broadcast(payload interface{}) {
	s.Push(models.MPushMessage{
		Type:      "dataset",
		Dataset:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan *models.MPushMessage, 256),
	}

	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage processes subscribe commands: the client narrows the
// widget set it wants pushes for. An empty widget list means everything.
func (s *DashboardServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	client.setWidgets(cmd.Widgets)

	// Send current session states so the client renders without waiting for
	// the next state transition.
	s.sessionMu.RLock()
	for id, sess := range s.sessions {
		if len(cmd.Widgets) > 0 && !contains(cmd.Widgets, id) {
			continue
		}
		msg := &models.MPushMessage{
			Type:      "state",
			WidgetID:  id,
			State:     sess.State(),
			Timestamp: time.Now().UnixMilli(),
		}
		select {
		case client.send <- msg:
		default:
		}
	}
	s.sessionMu.RUnlock()
}

// -----------------------------------------------------------------------------

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
