package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/store"
)

// ErrUnregistered marks a LINE account that is known to the platform but not
// linked to any business user. It is a normal branch, not a failure: the
// caller answers with a linking hint and creates no state.
var ErrUnregistered = errors.New("line account not linked to a user")

// Storage defines what the conversation service needs from persistence.
type Storage interface {
	ConversationByLineID(ctx context.Context, lineID string) (*store.ConversationRecord, error)
	CreateConversation(ctx context.Context, c *store.ConversationRecord) error
	SaveConversation(ctx context.Context, c *store.ConversationRecord) error
	AppendConversationMessage(ctx context.Context, m *store.ConversationMessage) error
	ConversationMessages(ctx context.Context, conversationID string, limit int) ([]store.ConversationMessage, error)
	UserByLineID(ctx context.Context, lineID string) (*store.User, error)
}

// Store loads and persists Conversation aggregates. At most one conversation
// exists per LINE account; one is created the first time a linked account
// speaks.
type Store struct {
	storage      Storage
	historyLimit int
	log          zerolog.Logger
}

// NewStore creates a conversation store. historyLimit caps the number of
// history entries loaded and kept in memory per conversation; 0 means
// unlimited.
func NewStore(storage Storage, historyLimit int) *Store {
	return &Store{
		storage:      storage,
		historyLimit: historyLimit,
		log:          logger.Component("conversation"),
	}
}

// Resolve returns the conversation for a LINE account, creating an idle one
// when the account is linked to a business user but has no conversation yet.
// Returns ErrUnregistered when the account is not linked to any user.
func (s *Store) Resolve(ctx context.Context, lineID string) (*Conversation, error) {
	rec, err := s.storage.ConversationByLineID(ctx, lineID)
	if err == nil {
		return s.load(ctx, rec)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	user, err := s.storage.UserByLineID(ctx, lineID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnregistered
	}
	if err != nil {
		return nil, fmt.Errorf("looking up linked user: %w", err)
	}

	rec = &store.ConversationRecord{
		LineID:  lineID,
		UserID:  user.ID,
		State:   string(StateIdle),
		Context: "{}",
	}
	if err := s.storage.CreateConversation(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.log.Info().Str("line_id", lineID).Str("user_id", user.ID).Msg("conversation created")

	return &Conversation{
		ID:     rec.ID,
		LineID: rec.LineID,
		UserID: rec.UserID,
		State:  StateIdle,
	}, nil
}

func (s *Store) load(ctx context.Context, rec *store.ConversationRecord) (*Conversation, error) {
	msgs, err := s.storage.ConversationMessages(ctx, rec.ID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	conv := &Conversation{
		ID:          rec.ID,
		LineID:      rec.LineID,
		UserID:      rec.UserID,
		State:       State(rec.State),
		Context:     unmarshalContext(rec.Context),
		LastMessage: rec.LastMessage,
		History:     make([]Message, 0, len(msgs)),
	}
	for _, m := range msgs {
		conv.History = append(conv.History, Message{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	return conv, nil
}

// Save commits state, context, last message and any history entries appended
// since the last save. History rows are written first so a partial failure
// never loses the state transition that follows them.
func (s *Store) Save(ctx context.Context, conv *Conversation) error {
	for i := range conv.pending {
		m := &conv.pending[i]
		err := s.storage.AppendConversationMessage(ctx, &store.ConversationMessage{
			ConversationID: conv.ID,
			Role:           m.Role,
			Content:        m.Content,
			CreatedAt:      m.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("appending history: %w", err)
		}
	}
	conv.pending = nil

	rec := &store.ConversationRecord{
		ID:          conv.ID,
		LineID:      conv.LineID,
		UserID:      conv.UserID,
		State:       string(conv.State),
		Context:     conv.Context.marshal(),
		LastMessage: conv.LastMessage,
	}
	if err := s.storage.SaveConversation(ctx, rec); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}

	// keep the in-memory window bounded to the configured retention
	if s.historyLimit > 0 && len(conv.History) > s.historyLimit {
		conv.History = conv.History[len(conv.History)-s.historyLimit:]
	}
	return nil
}
