package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogger(t *testing.T) {
	storage := NewMemoryStorage()
	logger := NewLogger(storage)

	err := logger.Log(
		context.Background(),
		ActionCreate,
		"bulk_operation",
		"op-1",
		"user@example.com",
		map[string]any{"targets": 5},
	)
	require.NoError(t, err)

	entries := storage.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCreate, entries[0].Action)
	assert.Equal(t, "bulk_operation", entries[0].Resource)
	assert.Equal(t, "op-1", entries[0].ResourceID)
	assert.Equal(t, "user@example.com", entries[0].Actor)
	assert.NotZero(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestFileStorageAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	storage, err := NewFileStorage(path)
	require.NoError(t, err)
	logger := NewLogger(storage)

	ctx := context.Background()
	require.NoError(t, logger.Log(ctx, ActionCreate, "bulk_operation", "op-1", "a", nil))
	require.NoError(t, logger.Log(ctx, ActionUpdate, "bulk_operation", "op-1", "a", nil))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines++
	}
	assert.Equal(t, 2, lines)
}
