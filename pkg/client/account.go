package client

import (
	"context"

	"chatrelay/internal/models"
)

// Register creates or refreshes the account profile for this session's user.
func (c *Client) Register(ctx context.Context, username, email string) (models.User, error) {
	var user models.User
	err := c.postJSON(ctx, "/api/users/register", map[string]any{
		"userId":   c.userID,
		"username": username,
		"email":    email,
	}, &user)
	return user, err
}

// UpdateStatus reports this user's online flag over HTTP. The server mirrors
// it into presence and the roster.
func (c *Client) UpdateStatus(ctx context.Context, online bool) error {
	return c.postJSON(ctx, "/api/users/"+c.userID+"/status", map[string]any{
		"isOnline": online,
	}, nil)
}

// Rooms lists the rooms the server exposes.
func (c *Client) Rooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.getJSON(ctx, c.baseURL+"/api/chat-rooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}
