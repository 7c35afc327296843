// Package messaging connects Jeeves to chat platforms and routes inbound messages
// to the bot's workflows.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/Jeeves/internal/models"
)

// Constants shared by the platform services
const (
	// DefaultChannelBufferSize is the buffer size of each service's inbound channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long a gateway callback waits on a full inbound channel
	DefaultChannelTimeout = 1 * time.Second
)

// Service is a chat platform connection.
type Service interface {
	// Start connects to the platform and begins emitting messages.
	Start(ctx context.Context) error

	// Stop disconnects and closes the Messages channel.
	Stop() error

	// Messages returns the channel of inbound messages.
	Messages() <-chan models.Message

	// Reply answers msg in the conversation it came from.
	Reply(ctx context.Context, msg models.Message, text string) error

	// InviteURL returns the link used to add the bot, or "" if the platform has none.
	InviteURL() string
}

// inbox is the inbound channel of a Service. Sends after close are dropped.
type inbox struct {
	mu     sync.RWMutex
	ch     chan models.Message
	closed bool
}

func newInbox() *inbox {
	return &inbox{ch: make(chan models.Message, DefaultChannelBufferSize)}
}

// push forwards msg, giving up when the channel stays full past DefaultChannelTimeout.
func (b *inbox) push(msg models.Message) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- msg:
		return true
	case <-time.After(DefaultChannelTimeout):
		return false
	}
}

func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
