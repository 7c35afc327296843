package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/BTreeMap/Jeeves/internal/flow"
	"github.com/BTreeMap/Jeeves/internal/genai"
	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/store"
)

// Chat commands, matched case-insensitively against the first word of a message.
const (
	CommandAIChat    = "!jeeves"
	CommandSchedule  = "!schedule"
	CommandInvite    = "!invite"
	CommandInviteURL = "!inviteurl"
	CommandHelp      = "!help"
)

// User-facing router text.
const (
	MsgSnag            = "I hit a snag processing that."
	MsgNoInviteURL     = "Invite links are not available on this platform."
	guardrailNoRequest = "no request accompanied the summons"
)

// Intent is the classified purpose of an inbound message.
type Intent int

const (
	IntentIgnore Intent = iota
	IntentAIChat
	IntentScheduleStart
	IntentScheduleContinue
	IntentInvite
	IntentInviteURL
)

func (i Intent) String() string {
	switch i {
	case IntentIgnore:
		return "ignore"
	case IntentAIChat:
		return "ai_chat"
	case IntentScheduleStart:
		return "schedule_start"
	case IntentScheduleContinue:
		return "schedule_continue"
	case IntentInvite:
		return "invite"
	case IntentInviteURL:
		return "invite_url"
	}
	return fmt.Sprintf("intent(%d)", int(i))
}

// Classify maps message text to an intent. args is the text after the command word,
// the whole trimmed text for a schedule continuation, or the command itself for
// IntentInviteURL. hasSessionHere reports an open scheduling session for the author
// in the message's channel.
func Classify(text string, hasSessionHere bool) (intent Intent, args string) {
	trimmed := strings.TrimSpace(text)
	command, rest := splitCommand(trimmed)

	switch command {
	case CommandAIChat:
		return IntentAIChat, rest
	case CommandSchedule:
		return IntentScheduleStart, rest
	}
	if hasSessionHere {
		return IntentScheduleContinue, trimmed
	}
	switch command {
	case CommandInvite:
		return IntentInvite, rest
	case CommandInviteURL, CommandHelp:
		return IntentInviteURL, command
	}
	return IntentIgnore, ""
}

// splitCommand returns the lowercased first word and the trimmed remainder.
func splitCommand(text string) (command, rest string) {
	idx := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' })
	if idx < 0 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:idx]), strings.TrimSpace(text[idx:])
}

// AIReplier is the AI reply boundary used by the router.
type AIReplier interface {
	Reply(ctx context.Context, req genai.ReplyRequest) string
	ClassifyIntent(ctx context.Context, text, userName, channelName string) genai.Intent
}

// RouterOpts holds optional router collaborators.
type RouterOpts struct {
	Dedup       store.DedupRepo
	History     *genai.History
	IntentHints bool
}

// RouterOption configures a Router.
type RouterOption func(*RouterOpts)

// WithDedup drops messages whose IDs were already seen.
func WithDedup(repo store.DedupRepo) RouterOption {
	return func(o *RouterOpts) { o.Dedup = repo }
}

// WithHistory keeps per-channel AI chat history in h.
func WithHistory(h *genai.History) RouterOption {
	return func(o *RouterOpts) { o.History = h }
}

// WithIntentHints appends a command suggestion to AI replies that look like
// scheduling or invite requests.
func WithIntentHints(enabled bool) RouterOption {
	return func(o *RouterOpts) { o.IntentHints = enabled }
}

// Router classifies inbound messages and dispatches them to the workflows.
type Router struct {
	svc       Service
	scheduler *flow.Scheduler
	inviter   *flow.Inviter
	ai        AIReplier
	dedup     store.DedupRepo
	history   *genai.History
	hints     bool
}

// NewRouter creates a Router replying through svc.
func NewRouter(svc Service, scheduler *flow.Scheduler, inviter *flow.Inviter, ai AIReplier, opts ...RouterOption) *Router {
	var cfg RouterOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.History == nil {
		cfg.History = genai.NewHistory(genai.DefaultHistorySize)
	}
	slog.Debug("Router created", "dedup", cfg.Dedup != nil, "intentHints", cfg.IntentHints)
	return &Router{
		svc:       svc,
		scheduler: scheduler,
		inviter:   inviter,
		ai:        ai,
		dedup:     cfg.Dedup,
		history:   cfg.History,
		hints:     cfg.IntentHints,
	}
}

// Start consumes the service's messages until ctx is done or the channel closes.
func (r *Router) Start(ctx context.Context) {
	slog.Info("Router starting message processing")

	go func() {
		defer slog.Info("Router stopped message processing")

		for {
			select {
			case msg, ok := <-r.svc.Messages():
				if !ok {
					slog.Debug("Router messages channel closed")
					return
				}
				if err := r.ProcessMessage(ctx, msg); err != nil {
					slog.Error("Router failed to process message", "error", err, "messageID", msg.ID, "userID", msg.Author.ID)
				}

			case <-ctx.Done():
				slog.Debug("Router stopping due to context cancellation")
				return
			}
		}
	}()
}

// ProcessMessage handles one inbound message. User-correctable problems are answered
// with their guidance and return nil. Internal failures, panics included, are answered
// with MsgSnag and returned for logging. It is safe for concurrent use.
func (r *Router) ProcessMessage(ctx context.Context, msg models.Message) (err error) {
	if !r.accepts(msg) {
		return nil
	}
	if r.seen(msg) {
		return nil
	}
	defer r.markProcessed(msg)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Router recovered from panic", "panic", rec, "messageID", msg.ID, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic while handling message: %v", rec)
			r.reply(ctx, msg, MsgSnag)
		}
	}()

	intent, args := Classify(msg.Text, r.scheduler.HasSessionIn(msg))
	slog.Debug("Router dispatch", "intent", intent, "userID", msg.Author.ID, "channelID", msg.ChannelID)

	if derr := r.dispatch(ctx, msg, intent, args); derr != nil {
		return r.handleError(ctx, msg, intent, derr)
	}
	return nil
}

func (r *Router) accepts(msg models.Message) bool {
	if msg.FromSelf || msg.Author.Bot || !msg.IsGroup {
		return false
	}
	if err := msg.Validate(); err != nil {
		slog.Debug("Router dropping invalid message", "error", err, "messageID", msg.ID)
		return false
	}
	return true
}

// seen records msg in the dedup store and reports whether it was already handled.
func (r *Router) seen(msg models.Message) bool {
	if r.dedup == nil || msg.ID == "" {
		return false
	}
	fresh, err := r.dedup.RecordInbound(msg.ID, msg.Author.ID)
	if err != nil {
		slog.Warn("Router dedup lookup failed, processing anyway", "error", err, "messageID", msg.ID)
		return false
	}
	if !fresh {
		slog.Debug("Router dropping duplicate message", "messageID", msg.ID)
		return true
	}
	return false
}

func (r *Router) markProcessed(msg models.Message) {
	if r.dedup == nil || msg.ID == "" {
		return
	}
	if err := r.dedup.MarkProcessed(msg.ID); err != nil {
		slog.Warn("Router failed to mark message processed", "error", err, "messageID", msg.ID)
	}
}

func (r *Router) dispatch(ctx context.Context, msg models.Message, intent Intent, args string) error {
	switch intent {
	case IntentIgnore:
		return nil
	case IntentAIChat:
		return r.chat(ctx, msg, args)
	case IntentScheduleStart:
		return r.scheduler.Start(ctx, msg)
	case IntentScheduleContinue:
		return r.scheduler.Continue(ctx, msg)
	case IntentInvite:
		return r.inviter.Invite(ctx, msg, args)
	case IntentInviteURL:
		return r.svc.Reply(ctx, msg, r.helpText(args))
	}
	return fmt.Errorf("unhandled intent %s", intent)
}

func (r *Router) handleError(ctx context.Context, msg models.Message, intent Intent, err error) error {
	var userErr *models.UserError
	if errors.As(err, &userErr) {
		slog.Warn("Router user error", "intent", intent, "userID", msg.Author.ID, "guidance", userErr.Guidance, "cause", userErr.Cause)
		r.reply(ctx, msg, userErr.Guidance)
		return nil
	}
	slog.Error("Router dispatch failed", "intent", intent, "userID", msg.Author.ID, "error", err)
	r.reply(ctx, msg, MsgSnag)
	return err
}

func (r *Router) reply(ctx context.Context, msg models.Message, text string) {
	if err := r.svc.Reply(ctx, msg, text); err != nil {
		slog.Error("Router failed to send reply", "error", err, "channelID", msg.ChannelID)
	}
}

func (r *Router) chat(ctx context.Context, msg models.Message, text string) error {
	if text == "" {
		return r.svc.Reply(ctx, msg, genai.Guardrail(guardrailNoRequest))
	}

	key := string(msg.Platform) + ":" + msg.ChannelID
	answer := r.ai.Reply(ctx, genai.ReplyRequest{
		Text:        text,
		History:     r.history.Turns(key),
		UserName:    msg.Author.Name,
		ChannelName: msg.ChannelName,
	})
	// A failed completion answers with the canned line; keep it out of the model's context.
	if answer != genai.FallbackReply {
		r.history.Append(key,
			genai.Turn{Role: genai.RoleUser, Content: text},
			genai.Turn{Role: genai.RoleAssistant, Content: answer},
		)
	}

	if r.hints {
		if hint := intentHint(r.ai.ClassifyIntent(ctx, text, msg.Author.Name, msg.ChannelName)); hint != "" {
			answer += "\n\n" + hint
		}
	}
	return r.svc.Reply(ctx, msg, answer)
}

func intentHint(intent genai.Intent) string {
	switch intent {
	case genai.IntentSchedule:
		return genai.Suggestion("It appears sir may wish to schedule this work order.",
			"Type `"+CommandSchedule+"` and I shall ask for the date and times.")
	case genai.IntentInvite:
		return genai.Suggestion("Should sir wish to add attendees to the calendar event:",
			"Type `"+CommandInvite+" @tech1 @tech2`.")
	}
	return ""
}

func (r *Router) helpText(command string) string {
	url := r.svc.InviteURL()
	if command == CommandInviteURL {
		if url == "" {
			return MsgNoInviteURL
		}
		return url
	}

	lines := []string{
		"`" + CommandAIChat + " <question>` ask me anything",
		"`" + CommandSchedule + "` request a calendar event for this channel",
		"`" + CommandInvite + " @tech1 @tech2` add attendees",
		"`cancel` abandon a scheduling request",
	}
	if url != "" {
		lines = append(lines, "Invite me elsewhere: "+url)
	}
	return strings.Join(lines, "\n")
}
