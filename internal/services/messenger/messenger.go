package messenger

import (
	"context"
	"errors"
)

// Message is one outbound notification. Photo is optional PNG data.
type Message struct {
	Text      string
	Photo     []byte
	PhotoName string
}

// Messenger delivers a message to one recipient, identified by the chat
// platform user id.
type Messenger interface {
	Send(ctx context.Context, recipient string, msg Message) error
}

// Driver names a messenger transport.
type Driver string

const (
	DriverTelegram Driver = "telegram"
	DriverPubNub   Driver = "pubnub"
	DriverLog      Driver = "log"
)

// ErrUnsupportedDriver is returned by callers that cannot build a driver.
var ErrUnsupportedDriver = errors.New("messenger: unsupported driver")
