package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/models"
)

// State of the realtime session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	ErrNotConnected = errors.New("client not connected")
	ErrNoActiveRoom = errors.New("no active room")
)

// Config describes how to reach the server and who the session belongs to.
type Config struct {
	// BaseURL is the server's HTTP base, e.g. http://localhost:8083.
	BaseURL string
	// UserID is the session identity; the fetched credential is scoped to it.
	UserID string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// OnMessage, when set, is invoked for every live message event.
	OnMessage func(models.EnrichedMessage)
	// OnRoster, when set, is invoked for every roster snapshot.
	OnRoster func([]models.User)
}

// Client owns one authenticated realtime session: it fetches a scoped
// credential, keeps a websocket connection, and maintains local views of the
// roster and per-room message history.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	onMessage  func(models.EnrichedMessage)
	onRoster   func([]models.User)

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	writeMu sync.Mutex
	room    string
	roster  map[string]models.User
	history map[string][]models.EnrichedMessage
	seen    map[string]map[string]bool
	done    chan struct{}
}

// New builds a disconnected Client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userID:     cfg.UserID,
		httpClient: httpClient,
		onMessage:  cfg.OnMessage,
		onRoster:   cfg.OnRoster,
		state:      StateDisconnected,
		roster:     make(map[string]models.User),
		history:    make(map[string][]models.EnrichedMessage),
		seen:       make(map[string]map[string]bool),
	}
}

type tokenResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
	Expires  int64  `json:"expires"`
}

// frame is the wire shape of one channel event.
type frame struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Connect fetches a scoped credential, opens the realtime connection,
// subscribes to the roster and own direct channel, and requests an initial
// roster snapshot.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect from state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	token, err := c.fetchToken(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("fetch token: %w", err)
	}

	wsURL, err := c.websocketURL(token.Token)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial realtime: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)

	for _, channel := range []string{
		models.ChannelUsers,
		models.ChannelPresence,
		models.DirectChannel(c.userID),
	} {
		if err := c.sendCommand(models.Command{Action: models.ActionSubscribe, Channel: channel}); err != nil {
			c.Close()
			return err
		}
	}
	return c.RequestRoster()
}

// Close tears down the connection and clears all local realtime state. The
// session is terminal: a new Connect starts from scratch.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.room = ""
	c.roster = make(map[string]models.User)
	c.history = make(map[string][]models.EnrichedMessage)
	c.seen = make(map[string]map[string]bool)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State reports the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the read loop exits (connection lost or Close called).
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// RequestRoster asks the server for a fresh roster broadcast.
func (c *Client) RequestRoster() error {
	return c.sendCommand(models.Command{
		Action:  models.ActionPublish,
		Channel: models.ChannelUsers,
		Event:   models.EventRequestUsers,
	})
}

// JoinRoom makes roomID the active room: it loads the latest persisted page
// over HTTP, subscribes to the room channel, and unsubscribes from the
// previous one.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	previous := c.room
	c.mu.Unlock()

	msgs, err := c.fetchMessages(ctx, roomID, nil, 0)
	if err != nil {
		return err
	}

	// most-recent-first over the wire, oldest-first for display
	reverse(msgs)

	c.mu.Lock()
	c.room = roomID
	c.history[roomID] = msgs
	ids := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		ids[m.ID] = true
	}
	c.seen[roomID] = ids
	c.mu.Unlock()

	if previous != "" && previous != roomID {
		if err := c.sendCommand(models.Command{Action: models.ActionUnsubscribe, Channel: models.ChatChannel(previous)}); err != nil {
			return err
		}
	}
	return c.sendCommand(models.Command{Action: models.ActionSubscribe, Channel: models.ChatChannel(roomID)})
}

// LoadMore fetches messages older than the oldest currently held and
// prepends them. An empty page leaves local history unchanged.
func (c *Client) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	if room == "" {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	held := c.history[room]
	if len(held) == 0 {
		c.mu.Unlock()
		return nil
	}
	oldest := held[0].CreatedAt
	c.mu.Unlock()

	msgs, err := c.fetchMessages(ctx, room, &oldest, 0)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	reverse(msgs)

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := msgs[:0:0]
	for _, m := range msgs {
		if !c.seen[room][m.ID] {
			fresh = append(fresh, m)
			c.markSeen(room, m.ID)
		}
	}
	c.history[room] = append(fresh, c.history[room]...)
	return nil
}

// Send posts a message to the active room. The confirmed record is appended
// to local history only after the server acknowledges it; on failure local
// history is left unchanged.
func (c *Client) Send(ctx context.Context, content string, recipientID *string) (models.EnrichedMessage, error) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == "" {
		return models.EnrichedMessage{}, ErrNoActiveRoom
	}

	body := map[string]any{
		"content":  content,
		"senderId": c.userID,
	}
	if recipientID != nil && *recipientID != "" {
		body["recipientId"] = *recipientID
	}

	var confirmed models.EnrichedMessage
	if err := c.postJSON(ctx, "/api/chat-rooms/"+url.PathEscape(room)+"/messages", body, &confirmed); err != nil {
		return models.EnrichedMessage{}, err
	}

	c.mu.Lock()
	c.appendMessage(room, confirmed)
	c.mu.Unlock()
	return confirmed, nil
}

// Roster returns a copy of the latest roster snapshot, ordered by username
// to match server broadcasts.
func (c *Client) Roster() []models.User {
	c.mu.Lock()
	out := make([]models.User, 0, len(c.roster))
	for _, u := range c.roster {
		out = append(out, u)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// History returns a copy of the held history for a room, oldest first.
func (c *Client) History(roomID string) []models.EnrichedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	held := c.history[roomID]
	out := make([]models.EnrichedMessage, len(held))
	copy(out, held)
	return out
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		done := c.done
		c.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch {
	case f.Channel == models.ChannelUsers && f.Event == models.EventUsersUpdated:
		var users []models.User
		if err := json.Unmarshal(f.Data, &users); err != nil {
			return
		}
		c.mu.Lock()
		c.roster = make(map[string]models.User, len(users))
		for _, u := range users {
			c.roster[u.ID] = u
		}
		c.mu.Unlock()
		if c.onRoster != nil {
			c.onRoster(users)
		}

	case f.Channel == models.ChannelPresence:
		var data models.PresenceData
		if err := json.Unmarshal(f.Data, &data); err != nil || data.UserID == "" {
			return
		}
		c.mu.Lock()
		if u, ok := c.roster[data.UserID]; ok {
			switch f.Event {
			case models.EventEnter:
				u.IsOnline = true
				u.LastSeen = nil
			case models.EventLeave:
				u.IsOnline = false
				now := time.Now().UTC()
				u.LastSeen = &now
			}
			c.roster[data.UserID] = u
		}
		c.mu.Unlock()

	case f.Event == models.EventMessage:
		var msg models.EnrichedMessage
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		appended := c.appendMessage(msg.ChatID, msg)
		c.mu.Unlock()
		if appended && c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// appendMessage adds a message to room history unless its id was already
// seen. Caller holds c.mu.
func (c *Client) appendMessage(room string, msg models.EnrichedMessage) bool {
	if c.seen[room][msg.ID] {
		return false
	}
	c.markSeen(room, msg.ID)
	c.history[room] = append(c.history[room], msg)
	return true
}

func (c *Client) markSeen(room, id string) {
	if c.seen[room] == nil {
		c.seen[room] = make(map[string]bool)
	}
	c.seen[room][id] = true
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) sendCommand(cmd models.Command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(cmd)
}

func (c *Client) fetchToken(ctx context.Context) (tokenResponse, error) {
	var token tokenResponse
	endpoint := c.baseURL + "/api/ably/token?userId=" + url.QueryEscape(c.userID)
	if err := c.getJSON(ctx, endpoint, &token); err != nil {
		return tokenResponse{}, err
	}
	if token.Token == "" {
		return tokenResponse{}, errors.New("empty token in response")
	}
	return token, nil
}

func (c *Client) fetchMessages(ctx context.Context, roomID string, before *time.Time, limit int) ([]models.EnrichedMessage, error) {
	endpoint := c.baseURL + "/api/chat-rooms/" + url.PathEscape(roomID) + "/messages"
	params := url.Values{}
	if before != nil {
		params.Set("before", before.Format(time.RFC3339Nano))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var msgs []models.EnrichedMessage
	if err := c.getJSON(ctx, endpoint, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) websocketURL(token string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	parsed.RawQuery = url.Values{"token": {token}}.Encode()
	return parsed.String(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func reverse(msgs []models.EnrichedMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
