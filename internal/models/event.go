package models

// Channel naming convention shared by server and clients.
const (
	ChannelPresence = "presence"
	ChannelUsers    = "users"
)

// ChatChannel returns the broadcast channel for a room.
func ChatChannel(roomID string) string { return "chat:" + roomID }

// DirectChannel returns the private channel for a user.
func DirectChannel(userID string) string { return "direct:" + userID }

// Event names carried on the channels above.
const (
	EventMessage      = "message"
	EventEnter        = "enter"
	EventLeave        = "leave"
	EventUsersUpdated = "users_updated"
	EventRequestUsers = "request_users"
)

// Event is one frame delivered on a named channel, both to websocket clients
// and to in-process subscribers.
type Event struct {
	Channel string `json:"channel"`
	Name    string `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// PresenceData is the payload of enter/leave events.
type PresenceData struct {
	UserID string `json:"userId"`
}

// Command is a client->server control frame on the websocket connection.
type Command struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	Event   string `json:"event,omitempty"`
}

// Command actions accepted by the broker.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPublish     = "publish"
)
