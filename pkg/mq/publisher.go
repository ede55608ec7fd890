// Package mq publishes frame dumps to a message broker.
package mq

import (
	"context"
	"errors"
)

// ErrNotConnected wraps failures to reach the broker. Publishers connect on
// first use and again after a lost connection.
var ErrNotConnected = errors.New("broker not connected")

type Publisher interface {
	Publish(ctx context.Context, source string, payload []byte) error
	Close() error
}
