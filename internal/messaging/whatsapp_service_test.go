package messaging

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/whatsapp"
)

func groupEvent(text string, mentions ...string) *events.Message {
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if len(mentions) > 0 {
		msg = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: &waE2E.ContextInfo{MentionedJID: mentions},
		}}
	}
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:    types.NewJID("120363025246125244", types.GroupServer),
				Sender:  types.NewJID("15551234567", types.DefaultUserServer),
				IsGroup: true,
			},
			ID:        "3EB0ABC",
			PushName:  "Bertie",
			Timestamp: time.Unix(1755600000, 0),
		},
		Message: msg,
	}
}

func TestWhatsAppService_MessageFromEvent(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	svc.setGroupName("120363025246125244@g.us", "WO-1234 Boiler")

	msg, ok := svc.messageFromEvent(groupEvent("!invite @15550001111 @15550002222", "15550001111@s.whatsapp.net", "15550002222@s.whatsapp.net"))
	if !ok {
		t.Fatal("expected text message to convert")
	}
	if msg.Platform != models.PlatformWhatsApp || msg.ChannelID != "120363025246125244@g.us" || msg.ChannelName != "WO-1234 Boiler" {
		t.Errorf("unexpected channel fields %+v", msg)
	}
	if msg.Author.ID != "15551234567" || msg.Author.Name != "Bertie" || !msg.IsGroup || msg.FromSelf {
		t.Errorf("unexpected author fields %+v", msg)
	}
	ids := msg.MentionIDs()
	if len(ids) != 2 || ids[0] != "15550001111" || ids[1] != "15550002222" {
		t.Errorf("unexpected mentions %v", ids)
	}
	if err := msg.Validate(); err != nil {
		t.Errorf("converted message should validate: %v", err)
	}
}

func TestWhatsAppService_IgnoresNonText(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	evt := groupEvent("x")
	evt.Message = &waE2E.Message{}
	if _, ok := svc.messageFromEvent(evt); ok {
		t.Error("expected non-text message to be skipped")
	}
}

func TestWhatsAppService_GroupNameLookedUpOnce(t *testing.T) {
	mock := whatsapp.NewMockClient()
	mock.GroupNames = map[string]string{"120363025246125244@g.us": "WO-1234 Boiler"}
	svc := NewWhatsAppService(mock)

	for i := 0; i < 2; i++ {
		msg, _ := svc.messageFromEvent(groupEvent("!schedule"))
		if msg.ChannelName != "WO-1234 Boiler" {
			t.Fatalf("expected looked-up group name, got %q", msg.ChannelName)
		}
	}
	if mock.GroupLookups != 1 {
		t.Errorf("expected one lookup, got %d", mock.GroupLookups)
	}
}

func TestWhatsAppService_GroupNameFallback(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	msg, _ := svc.messageFromEvent(groupEvent("hello"))
	if msg.ChannelName != "120363025246125244" {
		t.Errorf("expected JID user when lookup fails, got %q", msg.ChannelName)
	}

	name := types.GroupName{Name: "WO-9"}
	svc.handleEvent(&events.GroupInfo{JID: types.NewJID("120363025246125244", types.GroupServer), Name: &name})
	lookups := mock.GroupLookups
	msg, _ = svc.messageFromEvent(groupEvent("hello"))
	if msg.ChannelName != "WO-9" {
		t.Errorf("expected cached group name, got %q", msg.ChannelName)
	}
	if mock.GroupLookups != lookups {
		t.Errorf("cached name should not trigger a lookup")
	}
}

func TestWhatsAppService_ReplyQuotesMessage(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	msg, _ := svc.messageFromEvent(groupEvent("!schedule"))

	if err := svc.Reply(context.Background(), msg, "Enter the date"); err != nil {
		t.Fatalf("Reply returned error: %v", err)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("expected one sent message, got %d", len(mock.Sent))
	}
	sent := mock.Sent[0]
	if sent.Chat != msg.ChannelID || sent.Body != "Enter the date" {
		t.Errorf("unexpected sent message %+v", sent)
	}
	if sent.Quote == nil || sent.Quote.MessageID != "3EB0ABC" || sent.Quote.Participant != "15551234567@s.whatsapp.net" {
		t.Errorf("unexpected quote %+v", sent.Quote)
	}
}

func TestWhatsAppService_HandleEventForwards(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	svc.handleEvent(groupEvent("!schedule"))

	select {
	case msg := <-svc.Messages():
		if msg.Text != "!schedule" {
			t.Errorf("unexpected text %q", msg.Text)
		}
	default:
		t.Fatal("expected message on channel")
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if _, ok := <-svc.Messages(); ok {
		t.Error("expected messages channel closed")
	}
	if svc.inbox.push(models.Message{}) {
		t.Error("push after Stop must be dropped")
	}
}
