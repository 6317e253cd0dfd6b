package oasis

import (
	"context"
	"net/http"
)

// UserService handles user-related endpoints.
type UserService struct {
	c *Client
}

// Me fetches the current account and its subscription tier.
func (s *UserService) Me(ctx context.Context) (*User, error) {
	var user User
	if err := s.c.do(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
