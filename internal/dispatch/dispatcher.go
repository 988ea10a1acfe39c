// Package dispatch maps understood intents to replies over read-only order
// and product data. The dispatcher never writes to the store and never sends
// anything itself; it hands the webhook pipeline the reply text plus the
// dialog state the conversation should move to.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leecheenbao/tripeak-b2b/internal/conversation"
	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/nlu"
	"github.com/leecheenbao/tripeak-b2b/internal/store"
)

const productSearchLimit = 5

// OrderReader is the order lookup the dispatcher needs.
type OrderReader interface {
	OrderByNumber(ctx context.Context, number string) (*store.Order, error)
}

// ProductReader is the catalog lookup the dispatcher needs.
type ProductReader interface {
	SearchProducts(ctx context.Context, name string, limit int) ([]store.Product, error)
}

// Reply is the dispatcher's verdict for one turn: what to say and where the
// dialog goes next.
type Reply struct {
	Text        string
	NextState   conversation.State
	NextContext conversation.Context
}

// Dispatcher resolves intents against the store.
type Dispatcher struct {
	orders   OrderReader
	products ProductReader
	log      zerolog.Logger
}

func New(orders OrderReader, products ProductReader) *Dispatcher {
	return &Dispatcher{
		orders:   orders,
		products: products,
		log:      logger.Component("dispatch"),
	}
}

// Handle produces the reply for one understood message. A conversation that
// is waiting for a follow-up answer consumes the raw message for that answer
// regardless of how the classifier labeled it.
func (d *Dispatcher) Handle(ctx context.Context, res nlu.Result, conv *conversation.Conversation) Reply {
	switch conv.State {
	case conversation.StateWaitingOrderNumber:
		number := res.Entities[nlu.EntityOrderNumber]
		if number == "" {
			number = strings.TrimSpace(conv.LastMessage)
		}
		return d.lookupOrder(ctx, number)
	case conversation.StateWaitingProductQuery:
		query := res.Entities[nlu.EntityProductName]
		if query == "" {
			query = strings.TrimSpace(conv.LastMessage)
		}
		return d.searchProducts(ctx, query)
	case conversation.StateWaitingStockQuery:
		name := res.Entities[nlu.EntityProductName]
		if name == "" {
			name = strings.TrimSpace(conv.LastMessage)
		}
		return d.lookupStock(ctx, name)
	}

	switch res.Intent {
	case nlu.IntentGreeting, nlu.IntentGetHelp:
		return Reply{Text: res.Message, NextState: conversation.StateIdle}

	case nlu.IntentQueryOrder:
		if number := res.Entities[nlu.EntityOrderNumber]; number != "" {
			return d.lookupOrder(ctx, number)
		}
		return Reply{
			Text:        "請提供您的訂單編號，我將為您查詢訂單資訊。",
			NextState:   conversation.StateWaitingOrderNumber,
			NextContext: conversation.Context{Kind: conversation.ContextOrderLookup},
		}

	case nlu.IntentQueryProduct:
		query := res.Entities[nlu.EntityProductName]
		if query == "" {
			query = res.Entities[nlu.EntityCategoryName]
		}
		if query == "" {
			return Reply{
				Text:        "請告訴我您想查詢的產品名稱或分類，例如「牙盤」、「曲柄」等。",
				NextState:   conversation.StateWaitingProductQuery,
				NextContext: conversation.Context{Kind: conversation.ContextProductQuery},
			}
		}
		return d.searchProducts(ctx, query)

	case nlu.IntentQueryStock:
		name := res.Entities[nlu.EntityProductName]
		if name == "" {
			return Reply{
				Text:        "請告訴我您想查詢庫存的產品名稱。",
				NextState:   conversation.StateWaitingStockQuery,
				NextContext: conversation.Context{Kind: conversation.ContextStockQuery},
			}
		}
		return d.lookupStock(ctx, name)

	case nlu.IntentContactSupport:
		return Reply{
			Text:      "您想要聯繫客服嗎？請撥打 0800-123-456 或發送郵件至 support@tripeak.com",
			NextState: conversation.StateIdle,
		}

	case nlu.IntentGetLineUserID:
		return Reply{
			Text: fmt.Sprintf("您的 LINE User ID 是：\n\n%s\n\n請將此 ID 提供給管理員完成註冊，或者在前端介面手動綁定此 ID 到您的帳號。",
				shortLineID(conv.LineID)),
			NextState: conversation.StateIdle,
		}

	default:
		// unclear keeps the dialog where it is
		return Reply{Text: res.Message, NextState: conv.State, NextContext: conv.Context}
	}
}

func (d *Dispatcher) lookupOrder(ctx context.Context, number string) Reply {
	order, err := d.orders.OrderByNumber(ctx, number)
	if errors.Is(err, store.ErrNotFound) {
		return Reply{
			Text:      fmt.Sprintf("抱歉，找不到訂單編號為 %s 的訂單。請確認訂單編號是否正確。", number),
			NextState: conversation.StateIdle,
		}
	}
	if err != nil {
		d.log.Error().Err(err).Str("order_number", number).Msg("order lookup failed")
		return Reply{Text: "查詢訂單時發生錯誤，請稍後再試。", NextState: conversation.StateIdle}
	}

	lines := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		unit := item.Unit
		if unit == "" {
			unit = "件"
		}
		lines = append(lines, fmt.Sprintf("・%s x %d%s", item.Name, item.Quantity, unit))
	}

	return Reply{
		Text: fmt.Sprintf("訂單資訊：\n\n訂單編號：%s\n狀態：%s\n下單時間：%s\n\n訂單明細：\n%s\n\n總額：%s 元",
			order.Number,
			store.StatusText(order.Status),
			order.CreatedAt.Format("2006/01/02 15:04:05"),
			strings.Join(lines, "\n"),
			formatAmount(order.TotalAmount)),
		NextState: conversation.StateIdle,
	}
}

func (d *Dispatcher) searchProducts(ctx context.Context, query string) Reply {
	products, err := d.products.SearchProducts(ctx, query, productSearchLimit)
	if err != nil {
		d.log.Error().Err(err).Str("query", query).Msg("product search failed")
		return Reply{Text: "查詢產品時發生錯誤，請稍後再試。", NextState: conversation.StateIdle}
	}
	if len(products) == 0 {
		return Reply{Text: "抱歉，找不到相關產品。", NextState: conversation.StateIdle}
	}

	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("・%s - %s 元 (庫存：%d)", p.Name, formatAmount(p.Price), p.StockQuantity))
	}

	return Reply{
		Text:      fmt.Sprintf("找到以下產品：\n\n%s\n\n共找到 %d 個產品。", strings.Join(lines, "\n"), len(products)),
		NextState: conversation.StateIdle,
	}
}

func (d *Dispatcher) lookupStock(ctx context.Context, name string) Reply {
	products, err := d.products.SearchProducts(ctx, name, 1)
	if err != nil {
		d.log.Error().Err(err).Str("product", name).Msg("stock lookup failed")
		return Reply{Text: "查詢庫存時發生錯誤，請稍後再試。", NextState: conversation.StateIdle}
	}
	if len(products) == 0 {
		return Reply{
			Text:      fmt.Sprintf("抱歉，找不到名稱為「%s」的產品。", name),
			NextState: conversation.StateIdle,
		}
	}

	p := products[0]
	status := "目前缺貨中"
	if p.StockQuantity > 0 {
		status = fmt.Sprintf("目前庫存充足（%d 件）", p.StockQuantity)
	}
	return Reply{
		Text:      fmt.Sprintf("產品：%s\n%s\n價格：%s 元", p.Name, status, formatAmount(p.Price)),
		NextState: conversation.StateIdle,
	}
}

// shortLineID trims a LINE user id to the 33-character form shown to users.
func shortLineID(id string) string {
	if len(id) > 33 {
		return id[:33]
	}
	return id
}

// formatAmount renders a price without a fixed decimal count, so whole
// amounts print as integers.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
