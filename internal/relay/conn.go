package relay

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// envelope is the wire message type discriminator shared by both directions
// of the duplex channel (spec §4.8 "Relay wire format").
type envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

// Conn maintains a persistent duplex websocket connection to the hub,
// dispatching inbound "api_relay" frames to a Handler and writing its
// "api_relay_response" replies back out.
type Conn struct {
	dialer  websocket.Dialer
	url     string
	apiKey  string
	handler *Handler
	logger  *zap.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewConn builds a duplex connection to the hub at baseURL (http(s):// is
// rewritten to ws(s)://) using apiKey as a bearer token.
func NewConn(baseURL, apiKey string, handler *Handler, logger *zap.Logger) (*Conn, error) {
	wsURL, err := toWebsocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{dialer: websocket.Dialer{}, url: wsURL, apiKey: apiKey, handler: handler, logger: logger}, nil
}

func toWebsocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/relay/connect"
	return u.String(), nil
}

// Run dials the hub and services the duplex channel until stop is closed or
// the connection drops, retrying with a fixed backoff on failure.
func (c *Conn) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := c.runOnce(stop); err != nil {
			c.logger.Warn("relay connection dropped", zap.Error(err))
		}
		select {
		case <-stop:
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (c *Conn) runOnce(stop <-chan struct{}) error {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	conn, _, err := c.dialer.Dial(c.url, header)
	if err != nil {
		return err
	}
	c.conn = conn
	defer func() {
		c.handler.Teardown()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go c.pingLoop(done)
	defer close(done)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("discarding malformed relay frame", zap.Error(err))
			continue
		}
		if env.Type != "api_relay" {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.logger.Warn("discarding malformed api_relay frame", zap.Error(err))
			continue
		}

		go c.serve(req)
	}
}

func (c *Conn) serve(req Request) {
	resp := c.handler.Handle(req)
	if resp.RequestID == "" {
		return
	}
	if err := c.send(resp); err != nil {
		c.logger.Warn("failed to send relay response", zap.String("requestId", req.RequestID), zap.Error(err))
	}
}

func (c *Conn) send(resp Response) error {
	payload := struct {
		Type string `json:"type"`
		Response
	}{Type: "api_relay_response", Response: resp}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
