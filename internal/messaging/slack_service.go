package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/BTreeMap/Jeeves/internal/models"
)

// slackMentionRegex matches user mentions such as <@U012AB3CD> or <@U012AB3CD|name>.
var slackMentionRegex = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

// slackAPI is the subset of *slack.Client used by the service.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
}

// slackRef carries the thread a reply belongs in.
type slackRef struct {
	threadTS string
}

// SlackService implements Service over Slack Socket Mode.
type SlackService struct {
	client *slack.Client
	socket *socketmode.Client
	api    slackAPI
	inbox  *inbox
	selfID string
	cancel context.CancelFunc

	mu    sync.RWMutex
	names map[string]string
}

var _ Service = (*SlackService)(nil)

// NewSlackService creates a Socket Mode service from a bot token (xoxb-) and an
// app-level token (xapp-).
func NewSlackService(botToken, appToken string) (*SlackService, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack bot token is required")
	}
	if appToken == "" {
		return nil, fmt.Errorf("slack app token is required for Socket Mode")
	}
	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	svc := newSlackService(client)
	svc.client = client
	svc.socket = socketmode.New(client)
	return svc, nil
}

func newSlackService(api slackAPI) *SlackService {
	return &SlackService{
		api:   api,
		inbox: newInbox(),
		names: make(map[string]string),
	}
}

// Start authenticates and runs the Socket Mode loop in the background.
func (s *SlackService) Start(ctx context.Context) error {
	slog.Debug("SlackService Start invoked")
	auth, err := s.client.AuthTestContext(ctx)
	if err != nil {
		slog.Error("SlackService auth test failed", "error", err)
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	s.selfID = auth.UserID
	slog.Info("SlackService authenticated", "user", auth.User, "team", auth.Team)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.handleEvents(runCtx)
	go func() {
		if err := s.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("SlackService socket mode stopped", "error", err)
		}
	}()
	return nil
}

// Stop ends the Socket Mode loop and closes the message channel.
func (s *SlackService) Stop() error {
	slog.Info("SlackService Stop invoked")
	if s.cancel != nil {
		s.cancel()
	}
	s.inbox.close()
	return nil
}

// Messages returns the channel of inbound channel messages.
func (s *SlackService) Messages() <-chan models.Message {
	return s.inbox.ch
}

// Reply posts text in the thread of msg.
func (s *SlackService) Reply(ctx context.Context, msg models.Message, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if ref, ok := msg.Raw.(slackRef); ok && ref.threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(ref.threadTS))
	}
	if _, _, err := s.api.PostMessageContext(ctx, msg.ChannelID, opts...); err != nil {
		slog.Error("SlackService Reply error", "error", err, "channelID", msg.ChannelID)
		return fmt.Errorf("failed to post slack reply: %w", err)
	}
	slog.Debug("SlackService reply sent", "channelID", msg.ChannelID, "body_length", len(text))
	return nil
}

// InviteURL is empty: Slack apps are installed from the workspace admin pages.
func (s *SlackService) InviteURL() string {
	return ""
}

// SlackChannelLink is the web client link to a channel.
func SlackChannelLink(teamID, channelID string) string {
	return fmt.Sprintf("https://app.slack.com/client/%s/%s", teamID, channelID)
}

func (s *SlackService) handleEvents(ctx context.Context) {
	for {
		select {
		case evt, ok := <-s.socket.Events:
			if !ok {
				return
			}
			s.handleEvent(ctx, evt)
		case <-ctx.Done():
			return
		}
	}
}

func (s *SlackService) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.Debug("SlackService connecting to Socket Mode")
	case socketmode.EventTypeConnected:
		slog.Info("SlackService connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		slog.Warn("SlackService connection error", "data", evt.Data)
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			s.socket.Ack(*evt.Request)
		}
		s.handleEventsAPI(ctx, eventsAPIEvent)
	}
}

func (s *SlackService) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	msg, ok := messageFromSlack(event.TeamID, s.selfID, s.channelName(ctx, ev.Channel), ev)
	if !ok {
		return
	}
	if !s.inbox.push(msg) {
		slog.Warn("SlackService messages channel blocked, dropping message", "channelID", msg.ChannelID, "timeout", DefaultChannelTimeout)
	}
}

func (s *SlackService) channelName(ctx context.Context, channelID string) string {
	s.mu.RLock()
	name, ok := s.names[channelID]
	s.mu.RUnlock()
	if ok {
		return name
	}

	ch, err := s.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		slog.Warn("SlackService failed to resolve channel name", "channelID", channelID, "error", err)
		return ""
	}
	s.mu.Lock()
	s.names[channelID] = ch.Name
	s.mu.Unlock()
	return ch.Name
}

// messageFromSlack converts a plain user message. Edits, joins and other subtypes are skipped.
func messageFromSlack(teamID, selfID, channelName string, ev *slackevents.MessageEvent) (models.Message, bool) {
	if ev == nil || ev.SubType != "" {
		return models.Message{}, false
	}

	var mentions []models.User
	for _, m := range slackMentionRegex.FindAllStringSubmatch(ev.Text, -1) {
		mentions = append(mentions, models.User{ID: m[1]})
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	name := ev.Username
	if name == "" {
		name = ev.User
	}

	return models.Message{
		ID:          ev.Channel + ":" + ev.TimeStamp,
		Platform:    models.PlatformSlack,
		GuildID:     teamID,
		ChannelID:   ev.Channel,
		ChannelName: channelName,
		ChannelLink: SlackChannelLink(teamID, ev.Channel),
		Author:      models.User{ID: ev.User, Name: name, Bot: ev.BotID != ""},
		Text:        ev.Text,
		Mentions:    mentions,
		IsGroup:     ev.ChannelType == "channel" || ev.ChannelType == "group",
		FromSelf:    selfID != "" && ev.User == selfID,
		Raw:         slackRef{threadTS: threadTS},
	}, true
}
