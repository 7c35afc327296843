package models

import (
	"time"
)

// ActionType tags an outbound webhook payload.
type ActionType string

const (
	ActionTypeSchedule ActionType = "schedule"
	ActionTypeInvite   ActionType = "invite"
)

// DefaultTimezone is the label sent with every schedule request.
const DefaultTimezone = "America/Chicago"

// Origin holds the fields shared by every outbound payload.
type Origin struct {
	GuildID         string `json:"guild_id"`
	ChannelID       string `json:"channel_id"`
	ChannelName     string `json:"channel_name"`
	ChannelLink     string `json:"channel_link"`
	RequestedBy     string `json:"requested_by"`
	RequestedByName string `json:"requested_by_name"`
	RequestedAtISO  string `json:"requested_at_iso"`
}

// NewOrigin captures where and by whom a request was made.
func NewOrigin(msg Message, now time.Time) Origin {
	return Origin{
		GuildID:         msg.GuildID,
		ChannelID:       msg.ChannelID,
		ChannelName:     msg.ChannelName,
		ChannelLink:     msg.ChannelLink,
		RequestedBy:     msg.Author.ID,
		RequestedByName: msg.Author.Name,
		RequestedAtISO:  now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// SchedulePayload is posted to the webhook when a scheduling session is confirmed.
// The channel name doubles as the calendar event title.
type SchedulePayload struct {
	Type ActionType `json:"type"`
	Origin
	DateText  string `json:"date_text"`
	StartText string `json:"start_text"`
	EndText   string `json:"end_text"`
	Timezone  string `json:"timezone"`
}

// InvitePayload is posted to the webhook for an invite command.
type InvitePayload struct {
	Type ActionType `json:"type"`
	Origin
	AttendeeIDs []string `json:"attendee_ids"`
}
