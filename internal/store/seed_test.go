package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaultTemplates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedDefaultTemplates(ctx))

	for _, trigger := range []string{TriggerOrderCreated, TriggerOrderProcessing, TriggerOrderShipped, TriggerOrderCompleted} {
		tmpl, err := s.TemplateByTrigger(ctx, trigger)
		require.NoError(t, err, trigger)
		assert.Contains(t, tmpl.Content, "{orderNumber}")
	}
}

func TestSeedDefaultTemplates_KeepsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	custom := &MessageTemplate{
		Type:       "text",
		Content:    "自訂出貨通知 {orderNumber}",
		Trigger:    TriggerOrderShipped,
		IsTemplate: true,
	}
	require.NoError(t, s.CreateTemplate(ctx, custom))

	require.NoError(t, s.SeedDefaultTemplates(ctx))

	tmpl, err := s.TemplateByTrigger(ctx, TriggerOrderShipped)
	require.NoError(t, err)
	assert.Equal(t, "自訂出貨通知 {orderNumber}", tmpl.Content)
}
