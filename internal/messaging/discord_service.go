package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/Jeeves/internal/models"
)

const (
	// DiscordMaxMessageLength is Discord's per-message character limit.
	DiscordMaxMessageLength = 2000

	discordIntents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	// discordInvitePermissions: view channel, send messages, read history, embed links.
	discordInvitePermissions = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory |
		discordgo.PermissionEmbedLinks
)

// discordSender is the subset of *discordgo.Session used for replies.
type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordService implements Service over the Discord gateway.
type DiscordService struct {
	session       *discordgo.Session
	sender        discordSender
	clientID      string
	inbox         *inbox
	removeHandler func()
}

var _ Service = (*DiscordService)(nil)

// NewDiscordService creates a service for the bot token. clientID is only used for
// the invite URL and may be empty.
func NewDiscordService(token, clientID string) (*DiscordService, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token not set")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordIntents
	return newDiscordService(session, session, clientID), nil
}

func newDiscordService(session *discordgo.Session, sender discordSender, clientID string) *DiscordService {
	return &DiscordService{
		session:  session,
		sender:   sender,
		clientID: clientID,
		inbox:    newInbox(),
	}
}

// Start opens the gateway connection.
func (s *DiscordService) Start(ctx context.Context) error {
	slog.Debug("DiscordService Start invoked")
	s.removeHandler = s.session.AddHandler(s.onMessageCreate)
	if err := s.session.Open(); err != nil {
		slog.Error("DiscordService failed to open gateway", "error", err)
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	if u := s.session.State.User; u != nil {
		slog.Info("DiscordService online", "user", u.Username, "id", u.ID)
	}
	if url := s.InviteURL(); url != "" {
		slog.Info("DiscordService invite URL", "url", url)
	}
	return nil
}

// Stop closes the gateway connection and the message channel.
func (s *DiscordService) Stop() error {
	slog.Info("DiscordService Stop invoked")
	if s.removeHandler != nil {
		s.removeHandler()
	}
	err := s.session.Close()
	s.inbox.close()
	return err
}

// Messages returns the channel of inbound guild messages.
func (s *DiscordService) Messages() <-chan models.Message {
	return s.inbox.ch
}

// Reply answers msg as a Discord reply to it.
func (s *DiscordService) Reply(ctx context.Context, msg models.Message, text string) error {
	text = truncateRunes(text, DiscordMaxMessageLength)
	var err error
	if ref, ok := msg.Raw.(*discordgo.MessageReference); ok && ref != nil {
		_, err = s.sender.ChannelMessageSendReply(msg.ChannelID, text, ref, discordgo.WithContext(ctx))
	} else {
		_, err = s.sender.ChannelMessageSend(msg.ChannelID, text, discordgo.WithContext(ctx))
	}
	if err != nil {
		slog.Error("DiscordService Reply error", "error", err, "channelID", msg.ChannelID)
		return fmt.Errorf("failed to send discord reply: %w", err)
	}
	slog.Debug("DiscordService reply sent", "channelID", msg.ChannelID, "body_length", len(text))
	return nil
}

// InviteURL returns the OAuth2 URL that adds the bot with the permissions it needs.
func (s *DiscordService) InviteURL() string {
	return DiscordInviteURL(s.clientID)
}

// DiscordInviteURL builds the bot invite link for clientID, or "" without one.
func DiscordInviteURL(clientID string) string {
	if clientID == "" {
		return ""
	}
	return "https://discord.com/api/oauth2/authorize?client_id=" + url.QueryEscape(clientID) +
		"&permissions=" + strconv.FormatInt(discordInvitePermissions, 10) +
		"&scope=bot%20applications.commands"
}

// DiscordChannelLink is the deep link to a guild channel.
func DiscordChannelLink(guildID, channelID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s", guildID, channelID)
}

func (s *DiscordService) onMessageCreate(ds *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	selfID := ""
	if ds.State != nil && ds.State.User != nil {
		selfID = ds.State.User.ID
	}
	msg := messageFromDiscord(m.Message, selfID, discordChannelName(ds, m.ChannelID))
	if !s.inbox.push(msg) {
		slog.Warn("DiscordService messages channel blocked, dropping message", "channelID", msg.ChannelID, "timeout", DefaultChannelTimeout)
	}
}

func discordChannelName(ds *discordgo.Session, channelID string) string {
	if ds.State != nil {
		if ch, err := ds.State.Channel(channelID); err == nil {
			return ch.Name
		}
	}
	ch, err := ds.Channel(channelID)
	if err != nil {
		slog.Warn("DiscordService failed to resolve channel name", "channelID", channelID, "error", err)
		return ""
	}
	return ch.Name
}

func messageFromDiscord(m *discordgo.Message, selfID, channelName string) models.Message {
	var mentions []models.User
	for _, u := range m.Mentions {
		if u == nil {
			continue
		}
		mentions = append(mentions, models.User{ID: u.ID, Name: u.Username, Bot: u.Bot})
	}

	msg := models.Message{
		ID:          m.ID,
		Platform:    models.PlatformDiscord,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		ChannelName: channelName,
		Text:        m.Content,
		Mentions:    mentions,
		IsGroup:     m.GuildID != "",
		Time:        m.Timestamp,
		Raw:         m.Reference(),
	}
	if m.GuildID != "" {
		msg.ChannelLink = DiscordChannelLink(m.GuildID, m.ChannelID)
	}
	if m.Author != nil {
		msg.Author = models.User{ID: m.Author.ID, Name: m.Author.Username, Bot: m.Author.Bot}
		msg.FromSelf = selfID != "" && m.Author.ID == selfID
	}
	return msg
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
