package oasis

import (
	"context"
	"fmt"
	"net/http"
)

// HomesService handles home-related endpoints.
type HomesService struct {
	c *Client
}

// List returns all homes for the authenticated account, including each
// home's full thermostat and sensor tree.
func (s *HomesService) List(ctx context.Context) ([]Home, error) {
	var homes []Home
	if err := s.c.do(ctx, http.MethodGet, "/homes", nil, &homes); err != nil {
		return nil, err
	}
	return homes, nil
}

// Get returns the home with the given id, or ErrHomeNotFound if the account
// has no such home. The backend has no per-home endpoint, so this filters
// the list.
func (s *HomesService) Get(ctx context.Context, homeID string) (*Home, error) {
	homes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range homes {
		if homes[i].ID.String() == homeID {
			return &homes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: id %q", ErrHomeNotFound, homeID)
}

// Create creates a new home.
func (s *HomesService) Create(ctx context.Context, name string) (*Home, error) {
	payload := map[string]any{"name": name}
	var home Home
	if err := s.c.do(ctx, http.MethodPost, "/homes", payload, &home); err != nil {
		return nil, err
	}
	return &home, nil
}

// Delete removes a home and everything under it.
func (s *HomesService) Delete(ctx context.Context, homeID string) error {
	return s.c.do(ctx, http.MethodDelete, "/homes/"+homeID, nil, nil)
}
