package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_SuccessAndError(t *testing.T) {
	q := NewQueue()

	q.Success("Signed in")
	q.Error("Invalid email or password")

	messages := q.Drain()
	require.Len(t, messages, 2)
	assert.Equal(t, LevelSuccess, messages[0].Level)
	assert.Equal(t, "Signed in", messages[0].Text)
	assert.False(t, messages[0].At.IsZero())
	assert.Equal(t, LevelError, messages[1].Level)
	assert.Equal(t, "Invalid email or password", messages[1].Text)
}

func TestQueue_DrainEmpties(t *testing.T) {
	q := NewQueue()
	q.Success("Signed in")

	require.Len(t, q.Drain(), 1)
	assert.Empty(t, q.Drain())
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	q := NewQueue()

	for i := 0; i < defaultCapacity+3; i++ {
		q.Success(fmt.Sprintf("message %d", i))
	}

	messages := q.Drain()
	require.Len(t, messages, defaultCapacity)
	assert.Equal(t, "message 3", messages[0].Text)
	assert.Equal(t, fmt.Sprintf("message %d", defaultCapacity+2), messages[len(messages)-1].Text)
}
