package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/webhook"
)

// Step is a stage of the scheduling dialogue.
type Step int

const (
	StepDate Step = iota
	StepStartTime
	StepEndTime
	StepConfirm
)

// FirstStep is where every new session starts.
const FirstStep = StepDate

// User-facing text for the scheduling dialogue.
const (
	PromptDate      = "Enter the event **date** (e.g., 2025-08-20):"
	PromptStartTime = "Enter the **start time** (e.g., 09:00 AM):"
	PromptEndTime   = "Enter the **end time** (e.g., 05:00 PM):"
	PromptConfirm   = "Type `confirm` to create/update the calendar event, or `cancel` to abort."

	MsgCanceled         = "Scheduling canceled."
	MsgConfirmOrCancel  = "Please type `confirm` or `cancel`."
	MsgUnexpectedEnd    = "Unexpected end of scheduling flow."
	MsgSessionElsewhere = "You already have a scheduling session open in another channel. Type `cancel` there to abort it."
)

var stepNames = map[Step]string{
	StepDate:      "date",
	StepStartTime: "start_time",
	StepEndTime:   "end_time",
	StepConfirm:   "confirm",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the awaiting states.
func (s Step) Valid() bool {
	_, ok := stepNames[s]
	return ok
}

// Prompt is the question asked when entering s.
func (s Step) Prompt() string {
	switch s {
	case StepDate:
		return PromptDate
	case StepStartTime:
		return PromptStartTime
	case StepEndTime:
		return PromptEndTime
	case StepConfirm:
		return PromptConfirm
	}
	return ""
}

// Field is the answer key collected at s. Confirm collects nothing.
func (s Step) Field() (models.DataKey, bool) {
	switch s {
	case StepDate:
		return models.DataKeyDate, true
	case StepStartTime:
		return models.DataKeyStartTime, true
	case StepEndTime:
		return models.DataKeyEndTime, true
	}
	return "", false
}

// Next is the step after s. ok is false when s has no successor.
func (s Step) Next() (next Step, ok bool) {
	switch s {
	case StepDate:
		return StepStartTime, true
	case StepStartTime:
		return StepEndTime, true
	case StepEndTime:
		return StepConfirm, true
	}
	return s, false
}

// IsCancel reports whether input is the cancellation token.
func IsCancel(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), "cancel")
}

// IsConfirm reports whether input is the confirmation token.
func IsConfirm(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), "confirm")
}

// Scheduler drives the per-user scheduling dialogue.
type Scheduler struct {
	deps Dependencies
}

// NewScheduler creates a Scheduler. deps.Sessions, deps.Replier and deps.Deliverer are required.
func NewScheduler(deps Dependencies) *Scheduler {
	slog.Debug("Scheduler.NewScheduler: creating scheduler",
		"hasSessions", deps.Sessions != nil, "hasReplier", deps.Replier != nil, "hasDeliverer", deps.Deliverer != nil)
	return &Scheduler{deps: deps}
}

// Sessions returns the store the scheduler operates on.
func (s *Scheduler) Sessions() *SessionStore {
	return s.deps.Sessions
}

// HasSessionIn reports whether the author has an open session in the message's channel.
func (s *Scheduler) HasSessionIn(msg models.Message) bool {
	sess, ok := s.deps.Sessions.Get(msg.Author.ID)
	return ok && sess.ChannelID == msg.ChannelID
}

// Start handles an explicit scheduling command.
func (s *Scheduler) Start(ctx context.Context, msg models.Message) error {
	userID := msg.Author.ID
	unlock := s.deps.Sessions.Lock(userID)
	defer unlock()

	sess, ok := s.deps.Sessions.Get(userID)
	if !ok {
		sess = s.deps.Sessions.Create(userID, msg.ChannelID)
		slog.Info("Scheduler session started", "userID", userID, "channelID", msg.ChannelID)
		return s.reply(ctx, msg, sess.Step.Prompt())
	}
	if sess.ChannelID != msg.ChannelID {
		return models.NewUserError(MsgSessionElsewhere)
	}

	// Already mid-flow here; repeat the current question instead of recording the command.
	slog.Debug("Scheduler start with open session, re-prompting", "userID", userID, "step", sess.Step)
	return s.reply(ctx, msg, sess.Step.Prompt())
}

// Continue feeds one answer into the author's open session.
func (s *Scheduler) Continue(ctx context.Context, msg models.Message) error {
	userID := msg.Author.ID
	unlock := s.deps.Sessions.Lock(userID)
	defer unlock()

	sess, ok := s.deps.Sessions.Get(userID)
	if !ok || sess.ChannelID != msg.ChannelID {
		slog.Debug("Scheduler continue without session in channel", "userID", userID, "channelID", msg.ChannelID)
		return nil
	}

	input := strings.TrimSpace(msg.Text)

	if IsCancel(input) {
		s.deps.Sessions.Delete(userID)
		slog.Info("Scheduler session canceled", "userID", userID, "step", sess.Step)
		return s.reply(ctx, msg, MsgCanceled)
	}

	if sess.Step == StepConfirm {
		if IsConfirm(input) {
			return s.finalize(ctx, msg, sess)
		}
		return models.NewUserError(MsgConfirmOrCancel)
	}

	field, hasField := sess.Step.Field()
	next, hasNext := sess.Step.Next()
	if !hasField || !hasNext {
		s.deps.Sessions.Delete(userID)
		slog.Error("Scheduler reached end of step sequence", "userID", userID, "step", sess.Step)
		return s.reply(ctx, msg, MsgUnexpectedEnd)
	}

	sess.Answers[field] = input
	sess.Step = next
	s.deps.Sessions.Save(sess)
	slog.Debug("Scheduler recorded answer", "userID", userID, "field", field, "next", next)

	return s.reply(ctx, msg, next.Prompt())
}

// finalize posts the collected answers. The session is removed whatever the outcome.
func (s *Scheduler) finalize(ctx context.Context, msg models.Message, sess Session) error {
	defer s.deps.Sessions.Delete(sess.UserID)

	payload := BuildSchedulePayload(msg, sess, s.deps.timezone(), s.deps.now())
	err := s.deps.Deliverer.Deliver(ctx, models.ActionTypeSchedule, payload)
	if err != nil {
		var statusErr *webhook.StatusError
		if errors.As(err, &statusErr) {
			slog.Warn("Scheduler finalize rejected by webhook", "userID", sess.UserID, "status", statusErr.StatusCode)
			return &models.UserError{
				Guidance: fmt.Sprintf("Schedule request failed (%d).", statusErr.StatusCode),
				Cause:    err,
			}
		}
		return fmt.Errorf("deliver schedule request: %w", err)
	}

	slog.Info("Scheduler finalize succeeded", "userID", sess.UserID, "channel", msg.ChannelName)
	return s.reply(ctx, msg, fmt.Sprintf("✅ Schedule request sent for **%s**.", msg.ChannelName))
}

func (s *Scheduler) reply(ctx context.Context, msg models.Message, text string) error {
	if err := s.deps.Replier.Reply(ctx, msg, text); err != nil {
		return fmt.Errorf("send scheduling reply: %w", err)
	}
	return nil
}

// BuildSchedulePayload converts a completed session into the webhook payload.
// Answers are copied verbatim.
func BuildSchedulePayload(msg models.Message, sess Session, timezone string, now time.Time) models.SchedulePayload {
	return models.SchedulePayload{
		Type:      models.ActionTypeSchedule,
		Origin:    models.NewOrigin(msg, now),
		DateText:  sess.Answers[models.DataKeyDate],
		StartText: sess.Answers[models.DataKeyStartTime],
		EndText:   sess.Answers[models.DataKeyEndTime],
		Timezone:  timezone,
	}
}
