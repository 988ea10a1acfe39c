package nlu

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCache_PutGet(t *testing.T) {
	c := newResultCache(4)

	res := Result{Intent: IntentGreeting, Confidence: 0.9}
	c.Put("你好", res)

	got, ok := c.Get("你好")
	require.True(t, ok)
	assert.Equal(t, res, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestResultCache_EvictsOldestInserted(t *testing.T) {
	const capacity = 5
	c := newResultCache(capacity)

	for i := 0; i < capacity+1; i++ {
		c.Put(fmt.Sprintf("key-%d", i), Result{Intent: IntentUnclear})
	}

	// exactly the first-inserted key is gone, the other N remain
	_, ok := c.Get("key-0")
	assert.False(t, ok)
	for i := 1; i <= capacity; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "key-%d should survive", i)
	}
	assert.Equal(t, capacity, c.Len())
}

func TestResultCache_OverwriteKeepsInsertionOrder(t *testing.T) {
	c := newResultCache(2)

	c.Put("a", Result{Intent: IntentGreeting})
	c.Put("b", Result{Intent: IntentGetHelp})

	// overwriting "a" must not refresh its position: it is still the
	// oldest inserted key and the next insert evicts it
	c.Put("a", Result{Intent: IntentQueryOrder})
	c.Put("c", Result{Intent: IntentQueryStock})

	_, ok := c.Get("a")
	assert.False(t, ok)
	got, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, IntentGetHelp, got.Intent)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestResultCache_GetDoesNotRefresh(t *testing.T) {
	c := newResultCache(2)

	c.Put("a", Result{})
	c.Put("b", Result{})
	_, _ = c.Get("a") // reads must not promote the entry
	c.Put("c", Result{})

	_, ok := c.Get("a")
	assert.False(t, ok, "a is the oldest inserted key and must be evicted")
}
