package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/webhook"
)

// MsgInviteUsage is shown when an invite names nobody.
const MsgInviteUsage = "Usage: `!invite @tech1 @tech2` or IDs separated by spaces."

// attendeeIDRegex matches bare numeric user IDs of at least five digits.
var attendeeIDRegex = regexp.MustCompile(`^\d{5,}$`)

// ParseAttendees returns mentioned IDs followed by numeric ID tokens from args,
// deduplicated in order of first appearance.
func ParseAttendees(mentioned []string, args string) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, id := range mentioned {
		add(id)
	}
	for _, tok := range strings.Fields(args) {
		if attendeeIDRegex.MatchString(tok) {
			add(tok)
		}
	}
	return ids
}

// Inviter forwards invite requests to the webhook.
type Inviter struct {
	deps Dependencies
}

// NewInviter creates an Inviter. deps.Replier and deps.Deliverer are required.
func NewInviter(deps Dependencies) *Inviter {
	return &Inviter{deps: deps}
}

// Invite handles an invite command; args is the text after the command token.
func (i *Inviter) Invite(ctx context.Context, msg models.Message, args string) error {
	attendees := ParseAttendees(msg.MentionIDs(), args)
	if len(attendees) == 0 {
		return models.NewUserError(MsgInviteUsage)
	}

	payload := models.InvitePayload{
		Type:        models.ActionTypeInvite,
		Origin:      models.NewOrigin(msg, i.deps.now()),
		AttendeeIDs: attendees,
	}
	if err := i.deps.Deliverer.Deliver(ctx, models.ActionTypeInvite, payload); err != nil {
		var statusErr *webhook.StatusError
		if errors.As(err, &statusErr) {
			return &models.UserError{
				Guidance: fmt.Sprintf("Invite request failed (%d).", statusErr.StatusCode),
				Cause:    err,
			}
		}
		return fmt.Errorf("deliver invite request: %w", err)
	}

	slog.Info("Inviter request sent", "userID", msg.Author.ID, "attendees", len(attendees))
	if err := i.deps.Replier.Reply(ctx, msg, InviteConfirmation(len(attendees))); err != nil {
		return fmt.Errorf("send invite reply: %w", err)
	}
	return nil
}

// InviteConfirmation is the success text for n attendees.
func InviteConfirmation(n int) string {
	noun := "users"
	if n == 1 {
		noun = "user"
	}
	return fmt.Sprintf("Invite request sent for %d %s.", n, noun)
}
