package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandler(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2026-03-01T12:00:00Z")
	SetAppName("tasklist-test")
	t.Cleanup(func() {
		SetVersionInfo("dev", "unknown", "unknown")
		SetAppName("tasklist")
	})

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "tasklist-test", resp.App.Name)
	assert.Equal(t, "1.2.3", resp.App.Version)
	assert.Equal(t, "abcd123", resp.App.Commit)
	assert.NotEmpty(t, resp.Dependencies.Gofulmen)
	assert.NotEmpty(t, resp.Dependencies.Crucible)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.App.BuildDate)
}

func TestSetAppNameIgnoresEmpty(t *testing.T) {
	before := CurrentVersion().App.Name
	SetAppName("")
	assert.Equal(t, before, CurrentVersion().App.Name)
}
