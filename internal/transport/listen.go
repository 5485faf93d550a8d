package transport

import (
	"context"
	"net"
	"time"
)

// Listen opens a TCP listener with keepalive enabled on accepted connections.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: 30 * time.Second}
	return lc.Listen(ctx, "tcp", addr)
}
