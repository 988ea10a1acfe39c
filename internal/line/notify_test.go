package line

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leecheenbao/tripeak-b2b/internal/store"
)

type fakeNotifyStore struct {
	template *store.MessageTemplate
	admins   []store.User
}

func (f *fakeNotifyStore) TemplateByTrigger(_ context.Context, trigger string) (*store.MessageTemplate, error) {
	if f.template == nil || f.template.Trigger != trigger {
		return nil, store.ErrNotFound
	}
	return f.template, nil
}

func (f *fakeNotifyStore) AdminsWithLineID(context.Context) ([]store.User, error) {
	return f.admins, nil
}

type fakePusher struct {
	sent   map[string][]string
	failOn map[string]bool
}

func newFakePusher() *fakePusher {
	return &fakePusher{sent: map[string][]string{}, failOn: map[string]bool{}}
}

func (f *fakePusher) Push(_ context.Context, to string, texts ...string) error {
	if f.failOn[to] {
		return errors.New("push rejected")
	}
	f.sent[to] = append(f.sent[to], texts...)
	return nil
}

func shippedOrder() *store.Order {
	return &store.Order{
		Number: "TP2501011234",
		Dealer: store.User{
			CompanyName: "大盛單車",
			ContactName: "陳大文",
			LineID:      "Udealer",
		},
		Items: []store.OrderItem{
			{Name: "LEGGERO 導輪", Quantity: 2, Unit: "組"},
			{Name: "鈦合金螺絲", Quantity: 10},
		},
		TotalAmount: 4580,
		Status:      store.OrderStatusShipped,
		CreatedAt:   time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestNotifyOrder_RendersAndFansOut(t *testing.T) {
	st := &fakeNotifyStore{
		template: &store.MessageTemplate{
			Trigger: store.TriggerOrderShipped,
			Type:    "text",
			Content: "訂單 {orderNumber} 已出貨\n經銷商：{companyName} {dealerName}\n狀態：{status}\n日期：{createdAt}\n明細：\n{items}\n總額：{totalAmount} 元",
		},
		admins: []store.User{{LineID: "Uadmin1"}, {LineID: "Uadmin2"}},
	}
	pusher := newFakePusher()
	n := NewNotifier(st, pusher)

	require.NoError(t, n.NotifyOrder(context.Background(), store.TriggerOrderShipped, shippedOrder()))

	assert.Len(t, pusher.sent, 3)
	text := pusher.sent["Udealer"][0]
	assert.Contains(t, text, "訂單 TP2501011234 已出貨")
	assert.Contains(t, text, "經銷商：大盛單車 陳大文")
	assert.Contains(t, text, "狀態：已出貨")
	assert.Contains(t, text, "日期：2025/01/01")
	assert.Contains(t, text, "LEGGERO 導輪 x 2組")
	assert.Contains(t, text, "鈦合金螺絲 x 10件")
	assert.Contains(t, text, "總額：4580 元")
	assert.Equal(t, pusher.sent["Uadmin1"], pusher.sent["Udealer"])
}

func TestNotifyOrder_DeduplicatesDealerAdmin(t *testing.T) {
	st := &fakeNotifyStore{
		template: &store.MessageTemplate{Trigger: store.TriggerOrderCreated, Content: "新訂單 {orderNumber}"},
		admins:   []store.User{{LineID: "Udealer"}},
	}
	pusher := newFakePusher()
	n := NewNotifier(st, pusher)

	// dealer is also an admin; they get one message, not two
	require.NoError(t, n.NotifyOrder(context.Background(), store.TriggerOrderCreated, shippedOrder()))
	assert.Len(t, pusher.sent["Udealer"], 1)
}

func TestNotifyOrder_MissingTemplateIsNoop(t *testing.T) {
	pusher := newFakePusher()
	n := NewNotifier(&fakeNotifyStore{}, pusher)

	require.NoError(t, n.NotifyOrder(context.Background(), store.TriggerOrderCompleted, shippedOrder()))
	assert.Empty(t, pusher.sent)
}

func TestNotifyOrder_PushFailureDoesNotStopOthers(t *testing.T) {
	st := &fakeNotifyStore{
		template: &store.MessageTemplate{Trigger: store.TriggerOrderCreated, Content: "新訂單 {orderNumber}"},
		admins:   []store.User{{LineID: "Uadmin1"}, {LineID: "Uadmin2"}},
	}
	pusher := newFakePusher()
	pusher.failOn["Uadmin1"] = true
	n := NewNotifier(st, pusher)

	require.NoError(t, n.NotifyOrder(context.Background(), store.TriggerOrderCreated, shippedOrder()))
	assert.NotContains(t, pusher.sent, "Uadmin1")
	assert.Contains(t, pusher.sent, "Uadmin2")
	assert.Contains(t, pusher.sent, "Udealer")
}
