package messaging

import (
	"context"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/whatsapp"
)

// WhatsAppWebLink is the channel link sent for WhatsApp groups, which have no
// per-chat deep link.
const WhatsAppWebLink = "https://web.whatsapp.com/"

// whatsAppRef carries the sender JID a reply needs for quoting.
type whatsAppRef struct {
	participant string
}

// WhatsAppService implements Service using the whatsmeow-based client.
type WhatsAppService struct {
	client    whatsapp.WhatsAppSender
	namer     whatsapp.GroupNamer
	waClient  *whatsapp.Client
	inbox     *inbox
	handlerID uint32

	mu         sync.RWMutex
	groupNames map[string]string
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService sending through client.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client:     client,
		inbox:      newInbox(),
		groupNames: make(map[string]string),
	}
	service.namer, _ = client.(whatsapp.GroupNamer)

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// Start registers the event handler on the underlying client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.handlerID = s.waClient.GetClient().AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService event handler registered")
	return nil
}

// Stop removes the event handler, disconnects and closes the message channel.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	if s.waClient != nil && s.waClient.GetClient() != nil {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
		s.waClient.Disconnect()
	}
	s.inbox.close()
	return nil
}

// Messages returns the channel of inbound group messages.
func (s *WhatsAppService) Messages() <-chan models.Message {
	return s.inbox.ch
}

// Reply sends text to the group msg came from, quoting msg.
func (s *WhatsAppService) Reply(ctx context.Context, msg models.Message, text string) error {
	quote := &whatsapp.Quote{MessageID: msg.ID, Text: msg.Text}
	if ref, ok := msg.Raw.(whatsAppRef); ok {
		quote.Participant = ref.participant
	}
	if err := s.client.SendMessage(ctx, msg.ChannelID, text, quote); err != nil {
		slog.Error("WhatsAppService Reply error", "error", err, "chat", msg.ChannelID)
		return err
	}
	slog.Debug("WhatsAppService reply sent", "chat", msg.ChannelID, "body_length", len(text))
	return nil
}

// InviteURL is empty: WhatsApp accounts are added to groups by members.
func (s *WhatsAppService) InviteURL() string {
	return ""
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.GroupInfo:
		if v.Name != nil {
			s.setGroupName(v.JID.String(), v.Name.Name)
		}
	case *events.JoinedGroup:
		s.setGroupName(v.JID.String(), v.GroupName.Name)
	}
}

func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	msg, ok := s.messageFromEvent(evt)
	if !ok {
		slog.Debug("WhatsAppService ignoring non-text message", "chat", evt.Info.Chat.String())
		return
	}
	if !s.inbox.push(msg) {
		slog.Warn("WhatsAppService messages channel blocked, dropping message", "chat", msg.ChannelID, "timeout", DefaultChannelTimeout)
	}
}

func (s *WhatsAppService) messageFromEvent(evt *events.Message) (models.Message, bool) {
	if evt == nil || evt.Message == nil {
		return models.Message{}, false
	}
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return models.Message{}, false
	}

	var mentions []models.User
	for _, raw := range evt.Message.GetExtendedTextMessage().GetContextInfo().GetMentionedJID() {
		jid, err := types.ParseJID(raw)
		if err != nil {
			slog.Debug("WhatsAppService skipping unparsable mention", "jid", raw, "error", err)
			continue
		}
		mentions = append(mentions, models.User{ID: jid.User})
	}

	chat := evt.Info.Chat.String()
	return models.Message{
		ID:          string(evt.Info.ID),
		Platform:    models.PlatformWhatsApp,
		GuildID:     chat,
		ChannelID:   chat,
		ChannelName: s.groupName(chat, evt.Info.Chat.User),
		ChannelLink: WhatsAppWebLink,
		Author:      models.User{ID: evt.Info.Sender.User, Name: evt.Info.PushName},
		Text:        text,
		Mentions:    mentions,
		IsGroup:     evt.Info.IsGroup,
		FromSelf:    evt.Info.IsFromMe,
		Time:        evt.Info.Timestamp,
		Raw:         whatsAppRef{participant: evt.Info.Sender.ToNonAD().String()},
	}, true
}

func (s *WhatsAppService) setGroupName(chat, name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	s.groupNames[chat] = name
	s.mu.Unlock()
	slog.Debug("WhatsAppService cached group name", "chat", chat, "name", name)
}

// groupName returns the cached subject of chat, asking the server on a miss.
// fallback is used only when the lookup fails.
func (s *WhatsAppService) groupName(chat, fallback string) string {
	s.mu.RLock()
	name, ok := s.groupNames[chat]
	s.mu.RUnlock()
	if ok {
		return name
	}
	if s.namer == nil {
		return fallback
	}

	name, err := s.namer.GroupName(chat)
	if err != nil || name == "" {
		slog.Warn("WhatsAppService group name lookup failed, using chat ID", "chat", chat, "error", err)
		return fallback
	}
	s.setGroupName(chat, name)
	return name
}
