package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"arenagame/protocol"
)

// Client is a headless arena participant: a mirrored world plus a local
// player wired to one websocket connection.
type Client struct {
	*Game
	*LocalPlayer

	c   *websocket.Conn
	log *zap.Logger
}

// Dial connects to url, asking the server for codec's subprotocol.
func Dial(ctx context.Context, url string, codec protocol.Codec, log *zap.Logger) (*Client, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{codec.Subprotocol()},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	// The server falls back to JSON when it does not speak the codec.
	if c.Subprotocol() != codec.Subprotocol() {
		codec = protocol.ForSubprotocol(c.Subprotocol())
	}

	game := NewGame(codec, log)
	return &Client{
		Game:        game,
		LocalPlayer: NewLocalPlayer(game, codec),
		c:           c,
		log:         log,
	}, nil
}

// Run pumps messages in both directions until ctx is done or the
// connection drops.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.ReadMessages(ctx, c.c)
	})
	g.Go(func() error {
		return c.WriteMessages(ctx, c.c)
	})
	return g.Wait()
}

func (c *Client) Close() error {
	return c.c.Close(websocket.StatusNormalClosure, "")
}
