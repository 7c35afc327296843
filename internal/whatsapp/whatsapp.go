// Package whatsapp wraps the whatsmeow client so Jeeves can talk in WhatsApp groups.
//
// It handles device storage, login and sending text replies into group chats.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/BTreeMap/Jeeves/internal/store"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow device database
	DefaultSQLitePath = "/var/lib/jeeves/whatsmeow.db"
	// GroupSuffix is the JID server of group chats
	GroupSuffix = types.GroupServer
)

// ErrNotGroupChat is returned when a reply targets something other than a group.
var ErrNotGroupChat = errors.New("chat is not a WhatsApp group")

// Quote identifies the message a reply is quoting.
type Quote struct {
	MessageID   string
	Participant string // full sender JID
	Text        string
}

// WhatsAppSender sends text into a chat (production client and test mock).
type WhatsAppSender interface {
	SendMessage(ctx context.Context, chat string, body string, quote *Quote) error
}

// GroupNamer looks up a group's subject.
type GroupNamer interface {
	GroupName(chat string) (string, error)
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the raw login code instead of rendering a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient opens the device store, logs in if needed and connects.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	dbDriver := store.DetectDSNType(dbDSN)
	if needsForeignKeyWarning(dbDSN) {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
			"Consider adding '?_foreign_keys=on' to your connection string.",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		if err := login(waClient, cfg); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

func login(waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, _ := waClient.GetQRChannel(context.Background())
	if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp during login", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			slog.Error("Failed to create QR file", "error", err)
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("WhatsApp login event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(writer, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
		}
	}
	return nil
}

// needsForeignKeyWarning reports SQLite DSNs that do not enable foreign keys,
// which whatsmeow recommends.
func needsForeignKeyWarning(dsn string) bool {
	if store.DetectDSNType(dsn) != "sqlite3" {
		return false
	}
	return !strings.Contains(dsn, "foreign_keys")
}

// SendMessage sends body into the group chat, quoting the given message if set.
func (c *Client) SendMessage(ctx context.Context, chat string, body string, quote *Quote) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	jid, err := ParseGroupJID(chat)
	if err != nil {
		return err
	}

	slog.Debug("Sending WhatsApp message", "chat", chat, "body_length", len(body), "quoted", quote != nil)
	if _, err := c.waClient.SendMessage(ctx, jid, BuildMessage(body, quote)); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "chat", chat)
		return fmt.Errorf("failed to send message to %s: %w", chat, err)
	}
	return nil
}

// GroupName fetches the group's subject from the server.
func (c *Client) GroupName(chat string) (string, error) {
	if c.waClient == nil {
		return "", fmt.Errorf("whatsapp client not initialized")
	}
	jid, err := ParseGroupJID(chat)
	if err != nil {
		return "", err
	}
	info, err := c.waClient.GetGroupInfo(jid)
	if err != nil {
		return "", fmt.Errorf("failed to get group info for %s: %w", chat, err)
	}
	return info.Name, nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the websocket connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// ParseGroupJID parses chat and checks that it addresses a group.
func ParseGroupJID(chat string) (types.JID, error) {
	if chat == "" {
		return types.JID{}, fmt.Errorf("chat cannot be empty")
	}
	jid, err := types.ParseJID(chat)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid chat JID %q: %w", chat, err)
	}
	if jid.Server != GroupSuffix {
		return types.JID{}, fmt.Errorf("%w: %s", ErrNotGroupChat, chat)
	}
	return jid, nil
}

// BuildMessage builds a plain text message, or an extended text message quoting quote.
func BuildMessage(body string, quote *Quote) *waE2E.Message {
	if quote == nil || quote.MessageID == "" {
		return &waE2E.Message{Conversation: proto.String(body)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(body),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(quote.MessageID),
				Participant:   proto.String(quote.Participant),
				QuotedMessage: &waE2E.Message{Conversation: proto.String(quote.Text)},
			},
		},
	}
}

// SentMessage is one message captured by MockClient.
type SentMessage struct {
	Chat  string
	Body  string
	Quote *Quote
}

// MockClient records sends instead of talking to WhatsApp.
type MockClient struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error

	// GroupNames answers GroupName; a missing chat is an error.
	GroupNames   map[string]string
	GroupLookups int
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, chat string, body string, quote *Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{Chat: chat, Body: body, Quote: quote})
	return nil
}

func (m *MockClient) GroupName(chat string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GroupLookups++
	name, ok := m.GroupNames[chat]
	if !ok {
		return "", fmt.Errorf("group %s not found", chat)
	}
	return name, nil
}

var (
	_ WhatsAppSender = (*Client)(nil)
	_ WhatsAppSender = (*MockClient)(nil)
	_ GroupNamer     = (*Client)(nil)
	_ GroupNamer     = (*MockClient)(nil)
)
