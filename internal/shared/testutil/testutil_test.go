package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCapture(t *testing.T) {
	logger, logs := NewTestLogger()
	component := logger.With(slog.String("component", "jobqueue"))

	component.Info("job queued", slog.String("job_id", "j1"))
	logger.Debug("debug detail")

	records := logs.Records()
	require.Len(t, records, 2)

	r := logs.AssertLogged(t, slog.LevelInfo, "queued")
	assert.Equal(t, "jobqueue", r.Attrs["component"])
	assert.Equal(t, "j1", r.Attrs["job_id"])

	_, ok := logs.Find(slog.LevelWarn, "queued")
	assert.False(t, ok)
	logs.AssertNoErrors(t)
}

func TestWriteSourceFixtures(t *testing.T) {
	base := WriteSourceFixtures(t, t.TempDir())

	for _, name := range []string{"orders.csv", "users.json", "restaurants.sql"} {
		assert.FileExists(t, filepath.Join(base, "data", name))
	}
	raw, err := os.ReadFile(filepath.Join(base, "data", "orders.csv"))
	require.NoError(t, err)
	assert.Equal(t, OrdersCSV, string(raw))
}
