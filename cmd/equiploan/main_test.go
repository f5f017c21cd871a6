package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equiploan/internal/adapters/export"
	"equiploan/internal/core"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EQUIPLOAN_STORAGE_DRIVER", "memory")
	t.Setenv("EQUIPLOAN_SEED_ON_EMPTY", "true")
	t.Setenv("EQUIPLOAN_BLOB_DRIVER", "memory")
	t.Setenv("EQUIPLOAN_LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	missing := filepath.Join(t.TempDir(), "missing.env")
	argv := append([]string{"equiploan", "--env-file", missing}, args...)
	err := newApp(&out).Run(context.Background(), argv)
	return out.String(), err
}

func TestDashboardCommand(t *testing.T) {
	memoryEnv(t)
	out, err := runCLI(t, "dashboard")
	require.NoError(t, err)

	var dash core.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &dash))
	assert.Positive(t, dash.TotalItems)
}

func TestSweepCommand(t *testing.T) {
	memoryEnv(t)
	out, err := runCLI(t, "sweep")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "marked "), out)
}

func TestSeedCommand(t *testing.T) {
	memoryEnv(t)
	out, err := runCLI(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seed dataset")
}

func TestExportCommand(t *testing.T) {
	memoryEnv(t)
	out, err := runCLI(t, "export", "--kind", "sessions", "--format", "json")
	require.NoError(t, err)

	var job export.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, export.StatusSucceeded, job.Status)
	require.Len(t, job.Artifacts, 1)
	assert.Equal(t, export.FormatJSON, job.Artifacts[0].Format)
}

func TestExportCommandRejectsUnknownKind(t *testing.T) {
	memoryEnv(t)
	_, err := runCLI(t, "export", "--kind", "payroll")
	assert.Error(t, err)
}

func TestBadConfigFails(t *testing.T) {
	memoryEnv(t)
	t.Setenv("EQUIPLOAN_STORAGE_DRIVER", "cassandra")
	_, err := runCLI(t, "dashboard")
	assert.Error(t, err)
}
