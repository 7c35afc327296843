package flow

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/Jeeves/internal/models"
)

type recordingReplier struct {
	mu      sync.Mutex
	replies []string
}

func (r *recordingReplier) Reply(ctx context.Context, msg models.Message, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	return nil
}

func (r *recordingReplier) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}

type delivery struct {
	kind    models.ActionType
	payload any
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []delivery
	err   error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, kind models.ActionType, payload any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, delivery{kind: kind, payload: payload})
	return d.err
}

var fixedNow = time.Date(2025, 8, 19, 15, 4, 5, 0, time.UTC)

func newTestDeps() (Dependencies, *recordingReplier, *fakeDeliverer) {
	replier := &recordingReplier{}
	deliverer := &fakeDeliverer{}
	return Dependencies{
		Sessions:  NewSessionStore(),
		Replier:   replier,
		Deliverer: deliverer,
		Timezone:  "America/Chicago",
		Now:       func() time.Time { return fixedNow },
	}, replier, deliverer
}

func testMessage(userID, channelID, text string) models.Message {
	return models.Message{
		ID:          "m-" + text,
		Platform:    models.PlatformDiscord,
		GuildID:     "g1",
		ChannelID:   channelID,
		ChannelName: "wo-" + channelID,
		ChannelLink: "https://discord.com/channels/g1/" + channelID,
		Author:      models.User{ID: userID, Name: "name-" + userID},
		Text:        text,
		IsGroup:     true,
	}
}
