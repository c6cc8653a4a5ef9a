package realtime

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/response"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single dashboard connection of a company manager.
type Client struct {
	ID        string
	CompanyID uuid.UUID
	UserID    uuid.UUID
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// ServeOptions configures ServeWs.
type ServeOptions struct {
	Validate       middleware.TokenValidator
	Companies      companies.Finder
	AllowedOrigins string
	// Welcome, when set, returns the first event sent after the upgrade.
	Welcome func(co *models.Company) (event string, payload interface{})
}

// ServeWs handles GET /ws?slug=&token=. Only managers of the company may connect.
func ServeWs(hub *Hub, opts ServeOptions, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     middleware.OriginChecker(opts.AllowedOrigins),
	}
	return func(c *gin.Context) {
		slug := c.Query("slug")
		token := c.Query("token")
		if slug == "" || token == "" {
			response.BadRequest(c, "slug and token required")
			return
		}
		userID, role, err := opts.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		co, err := companies.Authorize(c.Request.Context(), opts.Companies, slug, userID, role)
		if err != nil {
			response.Error(c, err, "failed to load company")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			CompanyID: co.ID,
			UserID:    userID,
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, 64),
			logger:    logger,
		}
		hub.Register(client)
		if opts.Welcome != nil {
			event, payload := opts.Welcome(co)
			if data, err := json.Marshal(payload); err == nil {
				client.send <- WSMessage{Event: event, Data: data}
			}
		}
		go client.writePump()
		client.readPump()
	}
}

// readPump keeps the connection alive. Dashboards only listen; a "ping" event is answered with "pong".
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		if msg.Event == "ping" {
			select {
			case c.send <- WSMessage{Event: "pong"}:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
