// Package flow implements the conversational workflows Jeeves runs for a user:
// the multi-step scheduling dialogue and the one-shot invite request.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/Jeeves/internal/models"
)

// Replier sends a reply into the conversation a message came from.
type Replier interface {
	Reply(ctx context.Context, msg models.Message, text string) error
}

// Deliverer hands a finalized payload to the outbound webhook.
type Deliverer interface {
	Deliver(ctx context.Context, kind models.ActionType, payload any) error
}

// Dependencies holds everything a flow needs from the outside world.
type Dependencies struct {
	Sessions  *SessionStore
	Replier   Replier
	Deliverer Deliverer
	// Timezone is the fixed label attached to schedule requests.
	Timezone string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dependencies) timezone() string {
	if d.Timezone != "" {
		return d.Timezone
	}
	return models.DefaultTimezone
}
