package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/coder/websocket"

	"github.com/conneroisu/flight/internal/decoder"
)

// Subscribe connects to the server's websocket row feed and pumps every
// arriving row into d until ctx ends or the server closes the socket. A
// normal server close returns nil.
func (c *Client) Subscribe(ctx context.Context, d *decoder.Decoder) error {
	endpoint := strings.TrimRight(c.endpoints[0], "/")
	wsURL := strings.Replace(endpoint, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	conn, _, err := websocket.Dial(ctx, wsURL+"/ws", &websocket.DialOptions{
		HTTPClient: c.http,
	})
	if err != nil {
		return fmt.Errorf("client: websocket dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	conn.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client: websocket read: %w", err)
		}

		// One message may carry several newline-separated rows.
		for _, line := range strings.Split(string(data), "\n") {
			if line == "" {
				continue
			}
			d.FeedLine(line)
		}
	}
}
