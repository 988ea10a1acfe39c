package conversation

import (
	"encoding/json"
	"time"
)

// State is the dialog position of one conversation. Idle is both the initial
// state and the rest state between completed exchanges.
type State string

const (
	StateIdle                State = "idle"
	StateWaitingOrderNumber  State = "waiting_order_number"
	StateWaitingProductQuery State = "waiting_product_query"
	StateWaitingStockQuery   State = "waiting_stock_query"
	StateInConversation      State = "in_conversation"
)

// IsWaiting reports whether the state expects the next inbound message to
// answer a pending question.
func (s State) IsWaiting() bool {
	switch s {
	case StateWaitingOrderNumber, StateWaitingProductQuery, StateWaitingStockQuery:
		return true
	}
	return false
}

// ContextKind tags which waiting state produced the context.
type ContextKind string

const (
	ContextNone         ContextKind = ""
	ContextOrderLookup  ContextKind = "order_lookup"
	ContextProductQuery ContextKind = "product_query"
	ContextStockQuery   ContextKind = "stock_query"
)

// Context carries the data a waiting state needs for its follow-up turn.
// One variant per waiting state; fields outside the active variant stay zero.
type Context struct {
	Kind ContextKind `json:"kind,omitempty"`
	// AskedAt records when the clarification question was sent.
	AskedAt time.Time `json:"asked_at,omitempty"`
}

// IsZero reports whether no clarification is pending.
func (c Context) IsZero() bool { return c.Kind == ContextNone }

func (c Context) marshal() string {
	if c.IsZero() {
		return "{}"
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalContext(raw string) Context {
	var c Context
	if raw == "" {
		return c
	}
	// A context that fails to decode is treated as empty rather than
	// poisoning the whole conversation.
	_ = json.Unmarshal([]byte(raw), &c)
	return c
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation's history.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Conversation is the in-memory aggregate of one dialog with one LINE
// account. Mutations happen in memory; Store.Save persists them.
type Conversation struct {
	ID          string
	LineID      string
	UserID      string
	State       State
	Context     Context
	LastMessage string
	History     []Message

	// entries appended since the last save, flushed by Store.Save
	pending []Message
}

// AppendUser appends an inbound message to the history and records it as the
// most recent raw text.
func (c *Conversation) AppendUser(content string) {
	c.LastMessage = content
	c.append(RoleUser, content)
}

// AppendAssistant appends an outbound reply to the history.
func (c *Conversation) AppendAssistant(content string) {
	c.append(RoleAssistant, content)
}

func (c *Conversation) append(role, content string) {
	m := Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
	c.History = append(c.History, m)
	c.pending = append(c.pending, m)
}

// Transition replaces state and context together. Persistence is a separate
// explicit Save.
func (c *Conversation) Transition(state State, ctx Context) {
	c.State = state
	c.Context = ctx
}
