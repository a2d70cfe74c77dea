package client

import (
	"errors"
	"fmt"
	"lukas/inventory/internal/packet"
)

var (
	// ErrConnectionUnavailable means the server could not be reached after one reconnect.
	ErrConnectionUnavailable = errors.New("server unavailable")
	// ErrServerError covers replies that are malformed, uncorrelated or carry an unexpected status.
	ErrServerError = errors.New("server error")
	// ErrInvalidQuery means the request could not be encoded and was never sent.
	ErrInvalidQuery = errors.New("invalid query")
)

func unexpectedReply(reply packet.Packet) error {
	return fmt.Errorf("%w: %s reply to %s: %q", ErrServerError, reply.Status, reply.Command, reply.Payload)
}
