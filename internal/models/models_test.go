package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMessageValidate(t *testing.T) {
	m := Message{Platform: PlatformDiscord, ChannelID: "c1", Author: User{ID: "u1"}}
	if err := m.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Platform = "irc"
	if err := m.Validate(); err != ErrInvalidPlatform {
		t.Errorf("expected ErrInvalidPlatform, got %v", err)
	}

	m.Platform = PlatformSlack
	m.Author.ID = ""
	if err := m.Validate(); err != ErrEmptyAuthor {
		t.Errorf("expected ErrEmptyAuthor, got %v", err)
	}
}

func TestSchedulePayloadJSONFieldNames(t *testing.T) {
	msg := Message{
		GuildID:     "g1",
		ChannelID:   "c1",
		ChannelName: "wo-1234",
		ChannelLink: "https://discord.com/channels/g1/c1",
		Author:      User{ID: "u1", Name: "alice"},
	}
	p := SchedulePayload{
		Type:      ActionTypeSchedule,
		Origin:    NewOrigin(msg, time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)),
		DateText:  "2025-08-20",
		StartText: "09:00 AM",
		EndText:   "05:00 PM",
		Timezone:  DefaultTimezone,
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want := map[string]string{
		"type":              "schedule",
		"guild_id":          "g1",
		"channel_id":        "c1",
		"channel_name":      "wo-1234",
		"date_text":         "2025-08-20",
		"start_text":        "09:00 AM",
		"end_text":          "05:00 PM",
		"timezone":          "America/Chicago",
		"requested_by":      "u1",
		"requested_by_name": "alice",
		"requested_at_iso":  "2025-08-01T12:00:00.000Z",
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("field %s: expected %q, got %v", k, v, out[k])
		}
	}
}

func TestUserErrorUnwrap(t *testing.T) {
	cause := errors.New("status 502")
	err := &UserError{Guidance: "Schedule request failed (502).", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected UserError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("unexpected error text %q", err.Error())
	}

	var ue *UserError
	if !errors.As(error(NewUserError("try again")), &ue) || ue.Guidance != "try again" {
		t.Error("expected errors.As to find the UserError")
	}
}
