package models

// Room is a fixed named channel grouping broadcast messages. Rooms are
// statically defined and not user-creatable.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultRooms is the fixed room set served by the rooms endpoint.
var DefaultRooms = []Room{
	{ID: "general", Name: "General", Description: "General discussion"},
	{ID: "random", Name: "Random", Description: "Off-topic chatter"},
	{ID: "tech", Name: "Tech", Description: "Technology and programming"},
}
