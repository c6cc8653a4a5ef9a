package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains company_id -> set of dashboard connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: events published on any instance reach every instance.
type Hub struct {
	// companyID -> map[clientID]*Client
	companies map[uuid.UUID]map[string]*Client
	subs      map[uuid.UUID]func() // cancel Redis subscription per company
	mu        sync.RWMutex
	logger    *zap.Logger
	redis     RedisPublisher
	redisSub  RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishCompanyEvent(ctx context.Context, companyID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to company channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeCompany(companyID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Without Redis, events stay on this instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		companies: make(map[uuid.UUID]map[string]*Client),
		subs:      make(map[uuid.UUID]func()),
		logger:    logger,
		redis:     redisPub,
		redisSub:  redisSub,
	}
}

// Register adds a client to a company room. Starts the Redis subscription for this company if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.companies[c.CompanyID] == nil {
		h.companies[c.CompanyID] = make(map[string]*Client)
		if h.redisSub != nil {
			companyID := c.CompanyID
			cancel, err := h.redisSub.SubscribeCompany(companyID, func(event string, payload []byte) {
				h.Broadcast(companyID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("company subscription failed", zap.String("company_id", companyID.String()), zap.Error(err))
			} else {
				h.subs[companyID] = cancel
			}
		}
	}
	h.companies[c.CompanyID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined company", zap.String("client_id", c.ID), zap.String("company_id", c.CompanyID.String()))
}

// Unregister removes a client from a company room. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.companies[c.CompanyID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.companies, c.CompanyID)
			if cancel, ok := h.subs[c.CompanyID]; ok {
				cancel()
				delete(h.subs, c.CompanyID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left company", zap.String("client_id", c.ID), zap.String("company_id", c.CompanyID.String()))
}

// Broadcast sends a message to all clients of a company on this instance.
func (h *Hub) Broadcast(companyID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.companies[companyID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishToCompany delivers an event to every dashboard of the company. With Redis the event is
// published only, and each instance's subscriber broadcasts it once.
func (h *Hub) PublishToCompany(ctx context.Context, companyID uuid.UUID, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if h.redis != nil {
		return h.redis.PublishCompanyEvent(ctx, companyID, event, data)
	}
	h.Broadcast(companyID, event, json.RawMessage(data))
	return nil
}

// ConnectionCount returns the number of dashboards connected for a company on this instance.
func (h *Hub) ConnectionCount(companyID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.companies[companyID])
}
