package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// Client wraps room management and token generation against a LiveKit server.
type Client struct {
	url       string
	apiKey    string
	apiSecret string
}

type ClientConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("livekit url is required")
	}
	if config.APIKey == "" || config.APISecret == "" {
		return nil, fmt.Errorf("livekit api key and secret are required")
	}

	return &Client{
		url:       config.URL,
		apiKey:    config.APIKey,
		apiSecret: config.APISecret,
	}, nil
}

// GenerateToken creates a join token for the given room and identity.
func (c *Client) GenerateToken(roomName, identity string, isAgent bool) (string, error) {
	at := auth.NewAccessToken(c.apiKey, c.apiSecret)

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}
	if isAgent {
		t := true
		grant.CanUpdateOwnMetadata = &t
	}

	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetValidFor(24 * time.Hour)

	return at.ToJWT()
}

func (c *Client) CreateRoom(ctx context.Context, roomName string) error {
	roomClient := lksdk.NewRoomServiceClient(c.url, c.apiKey, c.apiSecret)

	_, err := roomClient.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name: roomName,
	})
	if err != nil {
		return fmt.Errorf("create room %s: %w", roomName, err)
	}
	return nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomName string) error {
	roomClient := lksdk.NewRoomServiceClient(c.url, c.apiKey, c.apiSecret)

	_, err := roomClient.DeleteRoom(ctx, &livekit.DeleteRoomRequest{
		Room: roomName,
	})
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomName, err)
	}
	return nil
}

// Join connects to a room with the given identity and callbacks.
func (c *Client) Join(roomName, identity string, callback *lksdk.RoomCallback) (*lksdk.Room, error) {
	token, err := c.GenerateToken(roomName, identity, true)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	room, err := lksdk.ConnectToRoomWithToken(c.url, token, callback)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", roomName, err)
	}
	return room, nil
}
