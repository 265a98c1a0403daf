package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"escrow-market/internal/market"
)

// Hub fans committed market events out to websocket clients by channel.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Events waiting to be delivered
	broadcast chan outbound

	// Channel subscriptions
	subscriptions map[string]map[*Client]bool

	done chan struct{}
	mu   sync.RWMutex
	log  *logrus.Entry
}

// Client represents a WebSocket client
type Client struct {
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Authenticated wallet, zero for anonymous connections
	wallet solana.PublicKey

	id string

	// Subscriptions, guarded by hub.mu
	subscriptions map[string]bool
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type outbound struct {
	channels []string
	msg      Message
}

// Message types
const (
	MessageTypeWelcome      = "welcome"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
	MessageTypeEvent        = "event"
)

// Channel names. Asset and user channels are suffixed with a base58 address.
const (
	ChannelMarket        = "market"
	ChannelListingPrefix = "listing:"
	ChannelAuctionPrefix = "auction:"
	ChannelUserPrefix    = "user:"
)

// WebSocket connection settings
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
	broadcastQueue = 256
)

var (
	errUnknownChannel = errors.New("unknown channel")
	errForbidden      = errors.New("user channels require the owning wallet")
)

// Upgrader is shared by every connection. Origins are enforced by the CORS
// layer in front of the hub.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		broadcast:     make(chan outbound, broadcastQueue),
		subscriptions: make(map[string]map[*Client]bool),
		done:          make(chan struct{}),
		log:           logger.WithField("component", "websocket"),
	}
}

// Run delivers queued events until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			h.dropLocked(client)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case out := <-h.broadcast:
			h.deliver(out)
		}
	}
}

// Publish implements market.EventSink. It never blocks the caller; events are
// dropped with a warning when the queue is full.
func (h *Hub) Publish(_ context.Context, ev market.Event) {
	out := outbound{
		channels: ChannelsFor(ev),
		msg: Message{
			Type:      MessageTypeEvent,
			Data:      ev,
			Timestamp: ev.Timestamp.Unix(),
			ID:        xid.New().String(),
		},
	}
	select {
	case h.broadcast <- out:
	case <-h.done:
	default:
		h.log.WithField("event", ev.Type).Warn("Event queue full, dropping event")
	}
}

// ChannelsFor lists the channels an event is delivered on.
func ChannelsFor(ev market.Event) []string {
	channels := []string{ChannelMarket}
	switch ev.Type {
	case market.EventListed, market.EventDelisted, market.EventPurchased,
		market.EventOfferMade, market.EventOfferCancelled, market.EventOfferAccepted:
		channels = append(channels, ChannelListingPrefix+ev.Asset.String())
	case market.EventAuctionCreated, market.EventBidPlaced, market.EventAuctionClaimed,
		market.EventAuctionCancelled, market.EventAuctionEnded:
		channels = append(channels, ChannelAuctionPrefix+ev.Asset.String())
	}
	if !ev.Actor.IsZero() {
		channels = append(channels, ChannelUserPrefix+ev.Actor.String())
	}
	if !ev.Counterparty.IsZero() && !ev.Counterparty.Equals(ev.Actor) {
		channels = append(channels, ChannelUserPrefix+ev.Counterparty.String())
	}
	return channels
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub. wallet
// is the authenticated caller, or zero for anonymous connections.
func (h *Hub) ServeWS(c *gin.Context, wallet solana.PublicKey) {
	select {
	case <-h.done:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event stream is shutting down"})
		return
	default:
	}

	conn, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		wallet:        wallet,
		id:            xid.New().String(),
		subscriptions: make(map[string]bool),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.log.WithField("client", client.id).Info("WebSocket client registered")

	data := map[string]interface{}{"client_id": client.id}
	if !client.wallet.IsZero() {
		data["wallet"] = client.wallet.String()
	}
	client.queueLocked(Message{Type: MessageTypeWelcome, Data: data, Timestamp: time.Now().Unix()})
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
}

// dropLocked removes the client and closes its send channel. The caller holds
// h.mu.
func (h *Hub) dropLocked(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for channel := range client.subscriptions {
		if subs, ok := h.subscriptions[channel]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, channel)
			}
		}
	}
	h.log.WithField("client", client.id).Info("WebSocket client unregistered")
}

func (h *Hub) deliver(out outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range out.channels {
		msg := out.msg
		msg.Channel = channel
		payload, err := json.Marshal(msg)
		if err != nil {
			h.log.Errorf("Failed to encode event: %v", err)
			return
		}
		for client := range h.subscriptions[channel] {
			select {
			case client.send <- payload:
			default:
				// slow consumer
				h.dropLocked(client)
			}
		}
	}
}

func (h *Hub) subscribe(client *Client, channel string) error {
	if err := client.authorize(channel); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return nil
	}

	subs, ok := h.subscriptions[channel]
	if !ok {
		subs = make(map[*Client]bool)
		h.subscriptions[channel] = subs
	}
	subs[client] = true
	client.subscriptions[channel] = true
	client.queueLocked(Message{Type: MessageTypeSubscribed, Channel: channel, Timestamp: time.Now().Unix()})
	return nil
}

func (h *Hub) unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}

	if subs, ok := h.subscriptions[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, channel)
		}
	}
	delete(client.subscriptions, channel)
	client.queueLocked(Message{Type: MessageTypeUnsubscribed, Channel: channel, Timestamp: time.Now().Unix()})
}

// reply queues a direct message to one client.
func (h *Hub) reply(client *Client, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		client.queueLocked(msg)
	}
}

// queueLocked sends without blocking; the caller holds hub.mu.
func (c *Client) queueLocked(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.dropLocked(c)
	}
}

// authorize checks that the client may read a channel.
func (c *Client) authorize(channel string) error {
	if channel == ChannelMarket {
		return nil
	}
	for _, prefix := range []string{ChannelListingPrefix, ChannelAuctionPrefix, ChannelUserPrefix} {
		if !strings.HasPrefix(channel, prefix) {
			continue
		}
		key, err := solana.PublicKeyFromBase58(strings.TrimPrefix(channel, prefix))
		if err != nil {
			return errUnknownChannel
		}
		if prefix == ChannelUserPrefix && (c.wallet.IsZero() || !c.wallet.Equals(key)) {
			return errForbidden
		}
		return nil
	}
	return errUnknownChannel
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithField("client", c.id).Warnf("WebSocket read error: %v", err)
			}
			return
		}

		var req SubscriptionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.hub.reply(c, errorMessage("", "invalid message format"))
			continue
		}

		switch req.Type {
		case MessageTypeSubscribe:
			if err := c.hub.subscribe(c, req.Channel); err != nil {
				c.hub.reply(c, errorMessage(req.Channel, err.Error()))
			}
		case MessageTypeUnsubscribe:
			c.hub.unsubscribe(c, req.Channel)
		case MessageTypePing:
			c.hub.reply(c, Message{Type: MessageTypePong, Timestamp: time.Now().Unix()})
		default:
			c.hub.reply(c, errorMessage(req.Channel, "unknown message type"))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorMessage(channel, text string) Message {
	return Message{
		Type:      MessageTypeError,
		Channel:   channel,
		Data:      map[string]string{"error": text},
		Timestamp: time.Now().Unix(),
	}
}
