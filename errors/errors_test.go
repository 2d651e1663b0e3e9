package errors

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelWrapping(t *testing.T) {
	err := Wrap(ErrNotFound, "candidate ada@example.com")
	assert.True(t, Is(err, ErrNotFound))
	assert.True(t, IsNotFoundError(err))
	assert.False(t, Is(err, ErrConflict))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("application %s", "APP_123")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "APP_123")
}

func TestDetailsSurvivesWrapping(t *testing.T) {
	err := New("delivery failed")
	err = WithDetail(err, "Reminder ID: RMD_001")
	err = Wrap(err, "processing reminders")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "Reminder ID: RMD_001", details[0])
}

func TestIsInteropWithStdlib(t *testing.T) {
	err := Wrap(sql.ErrNoRows, "loading reminder")
	assert.True(t, Is(err, sql.ErrNoRows))
}
