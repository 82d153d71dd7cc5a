package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/orderdesk/internal/clock"
	obsmetrics "github.com/smallbiznis/orderdesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultSendBuffer = 64

var (
	ErrUnknownClient = errors.New("unknown_client")
	ErrInvalidTopic  = errors.New("invalid_topic")
)

type HubParams struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Backplane *Backplane          `optional:"true"`
}

// Hub owns the connection registry. One mutex guards the map and every
// client's subscription state.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	log        *zap.Logger
	clock      clock.Clock
	metrics    *obsmetrics.Metrics
	backplane  *Backplane
	sendBuffer int
}

func NewHub(p HubParams) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		log:        p.Log.Named("realtime.hub"),
		clock:      p.Clock,
		metrics:    p.Metrics,
		backplane:  p.Backplane,
		sendBuffer: DefaultSendBuffer,
	}
}

// Register adds a client subscribed to all topics and queues the connected
// frame.
func (h *Hub) Register() *Client {
	c := newClient("client_"+ulid.Make().String(), h.sendBuffer)

	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	topics := c.topicList()
	h.mu.Unlock()

	h.metrics.AddRealtimeClients(context.Background(), 1)
	h.log.Info("client connected", zap.String("client_id", c.id), zap.Int("clients", total))

	h.SendTo(c.id, EventConnected, ConnectedMessage{
		ClientID:      c.id,
		Timestamp:     h.clock.Now(),
		Subscriptions: topics,
	})
	return c
}

// Unregister removes the client and closes its send channel. Safe to call
// more than once.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		c.closed = true
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.metrics.AddRealtimeClients(context.Background(), -1)
	h.log.Info("client disconnected", zap.String("client_id", id), zap.Int("clients", total))
}

func (h *Hub) SetSubscriptions(id string, topics []Topic, filters Filters) error {
	set := make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		t = Topic(strings.ToLower(strings.TrimSpace(string(t))))
		if !t.Valid() {
			return ErrInvalidTopic
		}
		set[t] = struct{}{}
	}

	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownClient
	}
	c.topics = set
	c.filters = filters
	subs := c.topicList()
	h.mu.Unlock()

	h.log.Debug("client subscribed", zap.String("client_id", id), zap.Any("topics", subs))
	h.SendTo(id, EventSubscriptionUpdated, SubscriptionMessage{
		Subscriptions: subs,
		Filters:       filters,
		Timestamp:     h.clock.Now(),
	})
	return nil
}

func (h *Hub) Unsubscribe(id string, topics []Topic) error {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownClient
	}
	for _, t := range topics {
		delete(c.topics, Topic(strings.ToLower(strings.TrimSpace(string(t)))))
	}
	subs := c.topicList()
	filters := c.filters
	h.mu.Unlock()

	h.SendTo(id, EventSubscriptionUpdated, SubscriptionMessage{
		Subscriptions: subs,
		Filters:       filters,
		Timestamp:     h.clock.Now(),
	})
	return nil
}

// HandleMessage dispatches one inbound frame from a client.
func (h *Hub) HandleMessage(id string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.SendTo(id, EventError, ErrorMessage{Message: "invalid message"})
		return
	}

	switch env.Event {
	case EventSubscribe:
		var req SubscribeRequest
		if err := decodeData(env.Data, &req); err != nil {
			h.SendTo(id, EventError, ErrorMessage{Message: "invalid subscribe payload"})
			return
		}
		if err := h.SetSubscriptions(id, req.Types, req.Filters); err != nil {
			h.SendTo(id, EventError, ErrorMessage{Message: err.Error()})
		}
	case EventUnsubscribe:
		var req UnsubscribeRequest
		if err := decodeData(env.Data, &req); err != nil {
			h.SendTo(id, EventError, ErrorMessage{Message: "invalid unsubscribe payload"})
			return
		}
		if err := h.Unsubscribe(id, req.Types); err != nil {
			h.SendTo(id, EventError, ErrorMessage{Message: err.Error()})
		}
	case EventPing:
		h.SendTo(id, EventPong, TimestampMessage{Timestamp: h.clock.Now()})
	default:
		h.SendTo(id, EventError, ErrorMessage{Message: "unknown event"})
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// SendTo queues one frame for a single client.
func (h *Hub) SendTo(id string, event string, data any) bool {
	frame, err := encodeFrame(event, data)
	if err != nil {
		h.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return false
	}

	h.mu.RLock()
	c, ok := h.clients[id]
	sent := ok && c.enqueue(frame)
	h.mu.RUnlock()

	if ok && !sent {
		h.metrics.RecordBroadcastDropped(context.Background(), event, "buffer_full")
		h.log.Warn("dropped frame for slow client", zap.String("client_id", id), zap.String("event", event))
	}
	return sent
}

// Broadcast fans an update out to every client subscribed to topic or all.
// With a backplane the update is published and every replica, this one
// included, delivers it from the subscription loop.
func (h *Hub) Broadcast(ctx context.Context, b Broadcast) {
	if h.backplane != nil {
		err := h.backplane.Publish(ctx, b)
		if err == nil {
			return
		}
		h.log.Warn("backplane publish failed; delivering locally", zap.Error(err))
	}
	h.Deliver(b)
}

// Deliver sends to local clients and returns how many received the frame.
func (h *Hub) Deliver(b Broadcast) int {
	frame, err := encodeFrame(EventRealtimeUpdate, b.Update)
	if err != nil {
		h.log.Error("encode update failed", zap.String("type", string(b.Update.Type)), zap.Error(err))
		return 0
	}

	sent, dropped := 0, 0
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.wants(b.Topic) || !c.filters.Match(b.Subject) {
			continue
		}
		if c.enqueue(frame) {
			sent++
		} else {
			dropped++
		}
	}
	h.mu.RUnlock()

	ctx := context.Background()
	h.metrics.RecordBroadcast(ctx, string(b.Update.Type), sent)
	if dropped > 0 {
		h.metrics.RecordBroadcastDropped(ctx, string(b.Update.Type), "buffer_full")
		h.log.Warn("dropped update for slow clients",
			zap.String("type", string(b.Update.Type)),
			zap.Int("dropped", dropped),
		)
	}
	if sent > 0 {
		h.log.Debug("broadcast delivered",
			zap.String("type", string(b.Update.Type)),
			zap.String("topic", string(b.Topic)),
			zap.Int("clients", sent),
		)
	}
	return sent
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasAudience reports whether a broadcast may reach anyone. With a backplane
// other replicas may hold clients, so it is always true.
func (h *Hub) HasAudience() bool {
	return h.backplane != nil || h.ClientCount() > 0
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	breakdown := make(map[Topic]int)
	for _, c := range h.clients {
		for t := range c.topics {
			breakdown[t]++
		}
	}
	return Stats{
		TotalConnections: len(h.clients),
		Subscriptions:    breakdown,
		Backplane:        h.backplane != nil,
		Timestamp:        h.clock.Now(),
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Unregister(id)
	}
}

func encodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}
