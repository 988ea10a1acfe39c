package store

import (
	"context"
	"errors"
	"fmt"
)

// defaultTemplates are the stock order-status notification texts. They use
// the same {placeholder} variables rendered at send time.
var defaultTemplates = []MessageTemplate{
	{
		Type:       "text",
		Content:    "感謝您在 TRiPEAK 下單！\n\n訂單編號: {orderNumber}\n訂單日期: {createdAt}\n訂單明細:\n{items}\n\n總額: {totalAmount} 元\n\n我們將盡快處理您的訂單。",
		Title:      "訂單創建通知",
		Trigger:    TriggerOrderCreated,
		IsTemplate: true,
	},
	{
		Type:       "text",
		Content:    "您的訂單 {orderNumber} 正在處理中！\n\n我們正在準備您的訂單，將會盡快發貨。\n\n訂單明細:\n{items}\n\n總額: {totalAmount} 元",
		Title:      "訂單處理通知",
		Trigger:    TriggerOrderProcessing,
		IsTemplate: true,
	},
	{
		Type:       "text",
		Content:    "您的訂單 {orderNumber} 已發貨！\n\n訂單明細:\n{items}\n\n總額: {totalAmount} 元\n\n感謝您的購買！",
		Title:      "訂單出貨通知",
		Trigger:    TriggerOrderShipped,
		IsTemplate: true,
	},
	{
		Type:       "text",
		Content:    "您的訂單 {orderNumber} 已完成！\n\n訂單明細:\n{items}\n\n總額: {totalAmount} 元\n\n感謝您的購買，希望您滿意我們的產品和服務！",
		Title:      "訂單完成通知",
		Trigger:    TriggerOrderCompleted,
		IsTemplate: true,
	},
}

// SeedDefaultTemplates inserts the stock notification templates for any
// trigger that has none yet. Existing templates are never overwritten.
func (s *SQLiteStore) SeedDefaultTemplates(ctx context.Context) error {
	for _, tmpl := range defaultTemplates {
		_, err := s.TemplateByTrigger(ctx, tmpl.Trigger)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("checking template for %s: %w", tmpl.Trigger, err)
		}
		tmpl := tmpl
		if err := s.CreateTemplate(ctx, &tmpl); err != nil {
			return fmt.Errorf("seeding template for %s: %w", tmpl.Trigger, err)
		}
	}
	return nil
}
