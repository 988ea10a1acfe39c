// Package webhook receives LINE webhook batches and runs each text message
// through the assistant pipeline: resolve dialog, understand, dispatch,
// persist, reply.
package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/leecheenbao/tripeak-b2b/internal/conversation"
	"github.com/leecheenbao/tripeak-b2b/internal/dispatch"
	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/metrics"
	"github.com/leecheenbao/tripeak-b2b/internal/nlu"
)

// Conversations loads and persists per-account dialogs.
type Conversations interface {
	Resolve(ctx context.Context, lineID string) (*conversation.Conversation, error)
	Save(ctx context.Context, conv *conversation.Conversation) error
}

// IntentResolver classifies a message. It never fails.
type IntentResolver interface {
	Resolve(ctx context.Context, text string, dialog nlu.Dialog) nlu.Result
}

// IntentDispatcher produces the reply for an understood message.
type IntentDispatcher interface {
	Handle(ctx context.Context, res nlu.Result, conv *conversation.Conversation) dispatch.Reply
}

// Replier answers one event through its reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken string, texts ...string) error
}

// Handler processes webhook event batches. Events fan out concurrently, but
// events for the same LINE account are serialized through a keyed mutex so
// two messages from one user can never interleave their read-modify-write of
// the dialog.
type Handler struct {
	conversations Conversations
	intents       IntentResolver
	dispatcher    IntentDispatcher
	replier       Replier
	locks         *conversation.KeyedMutex
	log           zerolog.Logger
}

func NewHandler(convs Conversations, intents IntentResolver, dispatcher IntentDispatcher, replier Replier) *Handler {
	return &Handler{
		conversations: convs,
		intents:       intents,
		dispatcher:    dispatcher,
		replier:       replier,
		locks:         conversation.NewKeyedMutex(),
		log:           logger.Component("webhook"),
	}
}

// HandleEvents processes one webhook batch. A failing or panicking event
// never takes down the batch; every event is attempted.
func (h *Handler) HandleEvents(ctx context.Context, events []*linebot.Event) {
	g, ctx := errgroup.WithContext(ctx)
	for _, event := range events {
		event := event
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					metrics.WebhookEvents.WithLabelValues(string(event.Type), "panic").Inc()
					h.log.Error().Any("panic", r).Str("event_type", string(event.Type)).Msg("event handler panicked")
				}
			}()
			if err := h.handleEvent(ctx, event); err != nil {
				metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
				h.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("event handling failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Handler) handleEvent(ctx context.Context, event *linebot.Event) error {
	if event.Type != linebot.EventTypeMessage {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}
	text, ok := event.Message.(*linebot.TextMessage)
	if !ok {
		// stickers, images and the like are successful no-ops
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}
	if event.Source == nil || event.Source.UserID == "" {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}

	lineID := event.Source.UserID
	unlock := h.locks.Lock(lineID)
	defer unlock()

	conv, err := h.conversations.Resolve(ctx, lineID)
	if errors.Is(err, conversation.ErrUnregistered) {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "unregistered").Inc()
		return h.replyLinkingHint(ctx, event.ReplyToken, lineID)
	}
	if err != nil {
		return err
	}

	conv.AppendUser(text.Text)
	res := h.intents.Resolve(ctx, text.Text, nlu.Dialog{State: string(conv.State)})
	reply := h.dispatcher.Handle(ctx, res, conv)
	conv.AppendAssistant(reply.Text)
	conv.Transition(reply.NextState, reply.NextContext)

	if err := h.conversations.Save(ctx, conv); err != nil {
		return fmt.Errorf("persisting conversation: %w", err)
	}
	metrics.WebhookEvents.WithLabelValues(string(event.Type), "ok").Inc()

	// delivery is best-effort once the dialog is persisted: the reply token
	// is single-use and short-lived, so a failure here is logged and dropped
	if err := h.replier.Reply(ctx, event.ReplyToken, reply.Text); err != nil {
		h.log.Warn().Err(err).Str("line_id", lineID).Msg("reply delivery failed")
	}
	return nil
}

func (h *Handler) replyLinkingHint(ctx context.Context, replyToken, lineID string) error {
	hint := fmt.Sprintf("您好！您的 LINE User ID 是：\n\n%s\n\n請將此 ID 提供給管理員完成註冊，或者在前端介面手動綁定此 ID 到您的帳號。", lineID)
	if err := h.replier.Reply(ctx, replyToken, hint); err != nil {
		h.log.Warn().Err(err).Str("line_id", lineID).Msg("linking hint delivery failed")
	}
	return nil
}
