package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/config"
	"foodpulse/internal/etl"
	"foodpulse/internal/shared/testutil"
)

func fixtureDir(t *testing.T) string {
	t.Helper()
	return testutil.WriteSourceFixtures(t, t.TempDir())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	empty := filepath.Join(t.TempDir(), "foodpulse.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	t.Setenv(config.EnvPrefix+"_CONFIG_FILE", empty)
	t.Setenv(config.EnvPrefix+"_ANALYTICS_EXPLAIN_TREES", "10")
	t.Setenv(config.EnvPrefix+"_LOGGING_LEVEL", "error")

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, config.AppName+" "+config.AppVersion)
}

func TestETL(t *testing.T) {
	base := fixtureDir(t)

	out, err := run(t, "etl", "--base-dir", base)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(base, "output", config.AnalyticsFileName))

	written, err := etl.ReadAnalyticsTable(filepath.Join(base, "output", config.AnalyticsFileName))
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Rows: 6, Columns: %d\n", written.Width()))
	assert.Contains(t, out, "Orders without a matching user: 1")
	assert.NoFileExists(t, filepath.Join(base, "output", config.ReportFileName))
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantOut    []string
		wantReport bool
	}{
		{
			name:       "all stages",
			args:       nil,
			wantOut:    []string{"completed", "report", "sheets: 5"},
			wantReport: true,
		},
		{
			name:    "forecast only as json",
			args:    []string{"--stage", "forecast", "--periods", "3", "--json"},
			wantOut: []string{`"status": "completed"`, `"forecast"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := fixtureDir(t)
			out, err := run(t, append([]string{"analyze", "--base-dir", base}, tt.args...)...)
			require.NoError(t, err, out)
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}
			report := filepath.Join(base, "output", config.ReportFileName)
			if tt.wantReport {
				assert.FileExists(t, report)
			} else {
				assert.NoFileExists(t, report)
			}
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	base := fixtureDir(t)

	_, err := run(t, "analyze", "--base-dir", base, "--stage", "publish")
	assert.Error(t, err)

	require.NoError(t, os.Remove(filepath.Join(base, "data", "orders.csv")))
	out, err := run(t, "analyze", "--base-dir", base)
	assert.Error(t, err)
	assert.Contains(t, out, "failed")
}

func TestETL_RejectsArgs(t *testing.T) {
	_, err := run(t, "etl", "extra")
	assert.Error(t, err)
}
