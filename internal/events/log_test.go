package events

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPublisherWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pub := NewLogPublisher(logger)

	err := pub.Publish(context.Background(), Event{
		Name:     JournalPosted,
		Entity:   "journal_entry",
		EntityID: uuid.New(),
		Actor:    "user-1",
		At:       time.Now(),
		Meta:     map[string]any{"reference_number": "JE-100"},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), JournalPosted)
	assert.Contains(t, buf.String(), "JE-100")
}

func TestLogPublisherNilSafe(t *testing.T) {
	var pub *LogPublisher
	assert.NoError(t, pub.Publish(context.Background(), Event{Name: JournalCreated}))
}
