package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is a business account. Dealers and admins both live here; a LINE
// account is linked by setting LineID.
type User struct {
	ID          string
	CompanyName string
	ContactName string
	Email       string
	Phone       string
	Role        string // "admin" or "dealer"
	LineID      string
	IsActive    bool
	CreatedAt   time.Time
}

// Product is a catalog entry used by the assistant's read-only lookups.
type Product struct {
	ID            string
	Name          string
	SKU           string
	Price         float64
	StockQuantity int
	Unit          string
	IsActive      bool
	CreatedAt     time.Time
}

// OrderItem is one line of an order. Name/price/unit are denormalized at
// order time so replies do not depend on later catalog edits.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     float64
	Unit      string
}

// Order statuses.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusCompleted  = "completed"
	OrderStatusPaid       = "paid"
	OrderStatusCancelled  = "cancelled"
)

// Order is a dealer order with its dealer and line items resolved.
type Order struct {
	ID          string
	Number      string
	Dealer      User
	Items       []OrderItem
	TotalAmount float64
	Status      string
	Note        string
	CreatedAt   time.Time
}

// StatusText returns the human-readable (zh-TW) name for an order status.
// Unknown statuses are returned as-is.
func StatusText(status string) string {
	switch status {
	case OrderStatusPending:
		return "待處理"
	case OrderStatusProcessing:
		return "處理中"
	case OrderStatusShipped:
		return "已出貨"
	case OrderStatusCompleted:
		return "已完成"
	case OrderStatusPaid:
		return "已付款"
	case OrderStatusCancelled:
		return "已取消"
	default:
		return status
	}
}

// ConversationRecord is the persisted form of a dialog. History lives in
// conversation_messages rows; Context is a JSON blob owned by the
// conversation package.
type ConversationRecord struct {
	ID          string
	LineID      string
	UserID      string
	State       string
	Context     string
	LastMessage string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConversationMessage is one history entry of a conversation.
type ConversationMessage struct {
	ID             string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// Notification template triggers.
const (
	TriggerOrderCreated    = "order_created"
	TriggerOrderProcessing = "order_processing"
	TriggerOrderShipped    = "order_shipped"
	TriggerOrderCompleted  = "order_completed"
	TriggerManual          = "manual"
)

// MessageTemplate is a stored outbound message. Templates with a trigger are
// used for automatic order-status notifications.
type MessageTemplate struct {
	ID         string
	Type       string // "text", "image", "template", "flex"
	Content    string
	Title      string
	Trigger    string
	IsTemplate bool
	CreatedAt  time.Time
}
