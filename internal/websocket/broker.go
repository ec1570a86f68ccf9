package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 64 * 1024
	defaultSendBuf      = 256
	defaultPublishBuf   = 4096
	maxConsecutiveDrops = 50
)

// Envelope is every message pushed to clients.
type Envelope struct {
	Type   string `json:"type"` // "trade" | "book"
	Symbol string `json:"symbol"`
	Seq    uint64 `json:"seq"`
	Data   any    `json:"data"`
}

type publishMsg struct {
	Topic string
	Data  []byte
}

type subscription struct {
	client *Client
	topic  string
}

// Hub fans trades and book snapshots out to websocket clients by symbol.
// An empty topic broadcasts to every client.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan publishMsg
	done        chan struct{}

	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}

	sendBuf int
	seq     *sequencer

	publishDrops atomic.Uint64
	clientCount  atomic.Int64

	logger *zap.Logger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subscribed map[string]struct{}

	// consecutive drops, the hub evicts the client past maxConsecutiveDrops
	drops int
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan publishMsg, defaultPublishBuf),
		done:        make(chan struct{}),
		clients:     make(map[*Client]struct{}),
		topics:      make(map[string]map[*Client]struct{}),
		sendBuf:     defaultSendBuf,
		seq:         newSequencer(),
		logger:      logger.With(zap.String("component", "ws-hub")),
	}
}

// Run runs the hub event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub started")
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.clientCount.Store(int64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			subs := h.topics[sub.topic]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.topics[sub.topic] = subs
			}
			subs[sub.client] = struct{}{}
			sub.client.subscribed[sub.topic] = struct{}{}

		case sub := <-h.unsubscribe:
			h.leave(sub.client, sub.topic)

		case p := <-h.publish:
			targets := h.clients
			if p.Topic != "" {
				targets = h.topics[p.Topic]
			}
			for c := range targets {
				h.deliver(c, p.Data)
			}

		case <-ctx.Done():
			h.logger.Info("ws hub shutting down", zap.Int("clients", len(h.clients)))
			for c := range h.clients {
				h.drop(c)
				_ = c.conn.Close()
			}
			return
		}
	}
}

func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
		c.drops = 0
	default:
		h.publishDrops.Add(1)
		c.drops++
		if c.drops > maxConsecutiveDrops {
			h.logger.Warn("evicting slow client", zap.Int("drops", c.drops))
			h.drop(c)
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) leave(c *Client, topic string) {
	if subs := h.topics[topic]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(c.subscribed, topic)
}

func (h *Hub) drop(c *Client) {
	for t := range c.subscribed {
		h.leave(c, t)
	}
	delete(h.clients, c)
	h.clientCount.Store(int64(len(h.clients)))
	close(c.send)
}

func (h *Hub) request(ch chan<- subscription, sub subscription) {
	select {
	case ch <- sub:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client.
// Initial topics may be passed as ?symbols=AAPL,MSFT
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		subscribed: make(map[string]struct{}),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	if s := r.URL.Query().Get("symbols"); s != "" {
		for _, sym := range strings.Split(s, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				h.request(h.subscribe, subscription{client: client, topic: sym})
			}
		}
	}

	go client.writePump()
	go client.readPump()
}

// readPump turns client commands into subscribe/unsubscribe requests.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.hub.logger.Warn("ws read error", zap.Error(err))
			}
			return
		}

		var cmd struct {
			Type   string `json:"type"`   // "subscribe" | "unsubscribe"
			Symbol string `json:"symbol"` // e.g. "AAPL"
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debug("invalid client msg", zap.Error(err))
			continue
		}

		switch cmd.Type {
		case "subscribe":
			if cmd.Symbol != "" {
				c.hub.request(c.hub.subscribe, subscription{client: c, topic: cmd.Symbol})
			}
		case "unsubscribe":
			if cmd.Symbol != "" {
				c.hub.request(c.hub.unsubscribe, subscription{client: c, topic: cmd.Symbol})
			}
		}
	}
}

// writePump serializes all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PublishTrade pushes a trade to subscribers of symbol.
// Non-blocking: a full publish buffer drops the message.
func (h *Hub) PublishTrade(symbol string, t model.Trade) {
	h.enqueue("trade", symbol, t)
}

// PublishBook pushes a depth snapshot to subscribers of its symbol.
func (h *Hub) PublishBook(depth model.MarketDepth) {
	h.enqueue("book", depth.Symbol, depth)
}

func (h *Hub) enqueue(kind, symbol string, data any) {
	b, err := json.Marshal(Envelope{
		Type:   kind,
		Symbol: symbol,
		Seq:    h.seq.next(symbol),
		Data:   data,
	})
	if err != nil {
		h.logger.Error("marshal ws message", zap.String("type", kind), zap.Error(err))
		return
	}

	select {
	case h.publish <- publishMsg{Topic: symbol, Data: b}:
	default:
		h.publishDrops.Add(1)
		h.logger.Warn("publish channel full, dropping message", zap.String("type", kind))
	}
}

// Stats returns the connected client count and total publish drops.
func (h *Hub) Stats() (clients int, drops uint64) {
	return int(h.clientCount.Load()), h.publishDrops.Load()
}
