package rpc

import (
	"context"

	"github.com/iliyamo/edusmart-auth/internal/queue"
)

// ProfileClient talks to the service that owns user profiles.
type ProfileClient struct {
	gw          *Gateway
	createQueue string
	loginQueue  string
}

func NewProfileClient(gw *Gateway, createQueue, loginQueue string) *ProfileClient {
	if createQueue == "" {
		createQueue = queue.ProfileCreateQueue
	}
	if loginQueue == "" {
		loginQueue = queue.ProfileLoginQueue
	}
	return &ProfileClient{gw: gw, createQueue: createQueue, loginQueue: loginQueue}
}

func (c *ProfileClient) RequestCreate(ctx context.Context, req queue.ProfileCreateRequest) (*Future[queue.ProfileCreateResponse], error) {
	return Call[queue.ProfileCreateRequest, queue.ProfileCreateResponse](ctx, c.gw, c.createQueue, req)
}

func (c *ProfileClient) RequestLogin(ctx context.Context, req queue.ProfileLoginRequest) (*Future[queue.ProfileLoginResponse], error) {
	return Call[queue.ProfileLoginRequest, queue.ProfileLoginResponse](ctx, c.gw, c.loginQueue, req)
}
