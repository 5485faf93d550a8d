// Package transport provides the multiplexed connection layer shared by the
// client and the server: an HTTP/2 cleartext Session that carries many
// concurrent requests over one TCP connection, a TCP listener, and the
// classification of terminal connection errors.
package transport
