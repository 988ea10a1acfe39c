package webhook

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leecheenbao/tripeak-b2b/internal/conversation"
	"github.com/leecheenbao/tripeak-b2b/internal/dispatch"
	"github.com/leecheenbao/tripeak-b2b/internal/nlu"
)

type fakeConversations struct {
	mu         sync.Mutex
	registered map[string]bool
	saved      []*conversation.Conversation
	saveErr    error

	busy       int32
	violations int32
}

func (f *fakeConversations) Resolve(_ context.Context, lineID string) (*conversation.Conversation, error) {
	// detect overlapping access for the same handler; the keyed lock must
	// prevent it for a single account
	if !atomic.CompareAndSwapInt32(&f.busy, 0, 1) {
		atomic.AddInt32(&f.violations, 1)
	}
	time.Sleep(2 * time.Millisecond)
	atomic.StoreInt32(&f.busy, 0)

	if !f.registered[lineID] {
		return nil, conversation.ErrUnregistered
	}
	return &conversation.Conversation{ID: "conv-" + lineID, LineID: lineID, State: conversation.StateIdle}, nil
}

func (f *fakeConversations) Save(_ context.Context, conv *conversation.Conversation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, conv)
	return nil
}

type fakeResolver struct {
	res nlu.Result
}

func (f *fakeResolver) Resolve(context.Context, string, nlu.Dialog) nlu.Result {
	return f.res.Normalize()
}

type fakeDispatcher struct {
	reply dispatch.Reply
}

func (f *fakeDispatcher) Handle(context.Context, nlu.Result, *conversation.Conversation) dispatch.Reply {
	return f.reply
}

type fakeReplier struct {
	mu      sync.Mutex
	replies map[string][]string
	err     error
}

func newFakeReplier() *fakeReplier {
	return &fakeReplier{replies: map[string][]string{}}
}

func (f *fakeReplier) Reply(_ context.Context, token string, texts ...string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[token] = append(f.replies[token], texts...)
	return nil
}

func textEvent(userID, replyToken, text string) *linebot.Event {
	return &linebot.Event{
		Type:       linebot.EventTypeMessage,
		ReplyToken: replyToken,
		Source:     &linebot.EventSource{Type: linebot.EventSourceTypeUser, UserID: userID},
		Message:    &linebot.TextMessage{Text: text},
	}
}

func TestHandleEvents_Pipeline(t *testing.T) {
	convs := &fakeConversations{registered: map[string]bool{"Uuser": true}}
	replier := newFakeReplier()
	h := NewHandler(convs,
		&fakeResolver{res: nlu.Result{Intent: nlu.IntentGreeting, Confidence: 0.9, Message: nlu.MessageGreeting}},
		&fakeDispatcher{reply: dispatch.Reply{Text: nlu.MessageGreeting, NextState: conversation.StateIdle}},
		replier)

	h.HandleEvents(context.Background(), []*linebot.Event{textEvent("Uuser", "rt-1", "你好")})

	require.Len(t, convs.saved, 1)
	saved := convs.saved[0]
	assert.Equal(t, "你好", saved.LastMessage)
	assert.Equal(t, conversation.StateIdle, saved.State)
	require.Len(t, saved.History, 2, "user and assistant turns recorded")
	assert.Equal(t, conversation.RoleUser, saved.History[0].Role)
	assert.Equal(t, conversation.RoleAssistant, saved.History[1].Role)
	assert.Equal(t, []string{nlu.MessageGreeting}, replier.replies["rt-1"])
}

func TestHandleEvents_TransitionsToDispatcherState(t *testing.T) {
	convs := &fakeConversations{registered: map[string]bool{"Uuser": true}}
	replier := newFakeReplier()
	h := NewHandler(convs,
		&fakeResolver{res: nlu.Result{Intent: nlu.IntentQueryOrder, Confidence: 0.8}},
		&fakeDispatcher{reply: dispatch.Reply{
			Text:        "請提供您的訂單編號，我將為您查詢訂單資訊。",
			NextState:   conversation.StateWaitingOrderNumber,
			NextContext: conversation.Context{Kind: conversation.ContextOrderLookup},
		}},
		replier)

	h.HandleEvents(context.Background(), []*linebot.Event{textEvent("Uuser", "rt-1", "我要查訂單")})

	require.Len(t, convs.saved, 1)
	assert.Equal(t, conversation.StateWaitingOrderNumber, convs.saved[0].State)
	assert.Equal(t, conversation.ContextOrderLookup, convs.saved[0].Context.Kind)
}

func TestHandleEvents_UnregisteredGetsLinkingHint(t *testing.T) {
	convs := &fakeConversations{registered: map[string]bool{}}
	replier := newFakeReplier()
	h := NewHandler(convs, &fakeResolver{}, &fakeDispatcher{}, replier)

	h.HandleEvents(context.Background(), []*linebot.Event{textEvent("Ustranger", "rt-9", "你好")})

	assert.Empty(t, convs.saved, "no conversation state for unlinked accounts")
	require.Len(t, replier.replies["rt-9"], 1)
	assert.Contains(t, replier.replies["rt-9"][0], "Ustranger")
	assert.Contains(t, replier.replies["rt-9"][0], "請將此 ID 提供給管理員完成註冊")
}

func TestHandleEvents_IgnoresNonTextEvents(t *testing.T) {
	convs := &fakeConversations{registered: map[string]bool{"Uuser": true}}
	replier := newFakeReplier()
	h := NewHandler(convs, &fakeResolver{}, &fakeDispatcher{}, replier)

	h.HandleEvents(context.Background(), []*linebot.Event{
		{
			Type:       linebot.EventTypeMessage,
			ReplyToken: "rt-1",
			Source:     &linebot.EventSource{Type: linebot.EventSourceTypeUser, UserID: "Uuser"},
			Message:    &linebot.StickerMessage{PackageID: "1", StickerID: "2"},
		},
		{
			Type:   linebot.EventTypeFollow,
			Source: &linebot.EventSource{Type: linebot.EventSourceTypeUser, UserID: "Uuser"},
		},
	})

	assert.Empty(t, convs.saved)
	assert.Empty(t, replier.replies)
}

func TestHandleEvents_SaveFailureSuppressesReply(t *testing.T) {
	convs := &fakeConversations{
		registered: map[string]bool{"Uuser": true},
		saveErr:    errors.New("disk full"),
	}
	replier := newFakeReplier()
	h := NewHandler(convs, &fakeResolver{}, &fakeDispatcher{reply: dispatch.Reply{Text: "x"}}, replier)

	h.HandleEvents(context.Background(), []*linebot.Event{textEvent("Uuser", "rt-1", "你好")})

	assert.Empty(t, replier.replies, "nothing is sent when the dialog was not persisted")
}

func TestHandleEvents_ReplyFailureDoesNotUndoPersist(t *testing.T) {
	convs := &fakeConversations{registered: map[string]bool{"Uuser": true}}
	replier := newFakeReplier()
	replier.err = errors.New("token expired")
	h := NewHandler(convs, &fakeResolver{}, &fakeDispatcher{reply: dispatch.Reply{Text: "x"}}, replier)

	h.HandleEvents(context.Background(), []*linebot.Event{textEvent("Uuser", "rt-1", "你好")})

	assert.Len(t, convs.saved, 1)
}

func TestHandleEvents_SerializesPerAccount(t *testing.T) {
	convs := &fakeConversations{registered: map[string]bool{"Uuser": true}}
	replier := newFakeReplier()
	h := NewHandler(convs, &fakeResolver{}, &fakeDispatcher{reply: dispatch.Reply{Text: "x"}}, replier)

	events := make([]*linebot.Event, 0, 8)
	for i := 0; i < 8; i++ {
		events = append(events, textEvent("Uuser", "rt", "你好"))
	}
	h.HandleEvents(context.Background(), events)

	assert.Zero(t, atomic.LoadInt32(&convs.violations), "same-account events must not interleave")
	assert.Len(t, convs.saved, 8)
}
