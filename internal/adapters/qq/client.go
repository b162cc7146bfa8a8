package qq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const callTimeout = 15 * time.Second

// wsClient speaks the Mirai HTTP API websocket adapter: one connection
// carries both pushed events (syncId "-1") and command round-trips
// correlated by syncId.
type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[string]chan json.RawMessage

	events chan json.RawMessage
}

// frame is the websocket envelope in both directions.
type frame struct {
	SyncID  string          `json:"syncId"`
	Command string          `json:"command,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// dialWS connects to ws://<host>/all with the verify key and bot id as
// query parameters.
func dialWS(ctx context.Context, host, verifyKey string, botID int64) (*wsClient, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   host,
		Path:   "/all",
		RawQuery: url.Values{
			"verifyKey": {verifyKey},
			"qq":        {strconv.FormatInt(botID, 10)},
		}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial qq backend: %w", err)
	}
	return &wsClient{
		conn:    conn,
		pending: make(map[string]chan json.RawMessage),
		events:  make(chan json.RawMessage, 64),
	}, nil
}

func (c *wsClient) Close() error { return c.conn.Close() }

// Events delivers pushed backend events (group messages and the like).
func (c *wsClient) Events() <-chan json.RawMessage { return c.events }

// ReadLoop pumps incoming frames until the connection dies, routing
// command responses to their waiters and everything else to Events.
// Returns the read error; the caller owns reconnecting.
func (c *wsClient) ReadLoop(ctx context.Context) error {
	defer close(c.events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("qq backend read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}

		if f.SyncID != "" && f.SyncID != "-1" {
			c.mu.Lock()
			waiter := c.pending[f.SyncID]
			delete(c.pending, f.SyncID)
			c.mu.Unlock()
			if waiter != nil {
				waiter <- f.Data
			}
			continue
		}

		select {
		case c.events <- f.Data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Call sends one command frame and waits for the matching response.
func (c *wsClient) Call(ctx context.Context, command string, content any) (json.RawMessage, error) {
	payload, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.nextID++
	syncID := strconv.FormatUint(c.nextID, 10)
	waiter := make(chan json.RawMessage, 1)
	c.pending[syncID] = waiter
	c.mu.Unlock()

	out := frame{SyncID: syncID, Command: command, Content: payload}

	// Concurrent writers share the connection; gorilla allows only one
	// writer at a time.
	c.writeMu.Lock()
	err = c.conn.WriteJSON(out)
	c.writeMu.Unlock()
	if err != nil {
		c.dropWaiter(syncID)
		return nil, fmt.Errorf("qq backend write: %w", err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case data := <-waiter:
		return data, nil
	case <-timer.C:
		c.dropWaiter(syncID)
		return nil, fmt.Errorf("qq backend: %s timed out", command)
	case <-ctx.Done():
		c.dropWaiter(syncID)
		return nil, ctx.Err()
	}
}

func (c *wsClient) dropWaiter(syncID string) {
	c.mu.Lock()
	delete(c.pending, syncID)
	c.mu.Unlock()
}
