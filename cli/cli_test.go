package cli

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	for _, tc := range []struct {
		status string
		code   int
	}{
		{"ok", http.StatusOK},
		{"warning", http.StatusTooManyRequests},
		{"critical", http.StatusInternalServerError},
	} {
		t.Run(tc.status, func(t *testing.T) {
			status := tc.status
			handler := HealthHandler(HealthFunc(func() string { return status }))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
			require.Equal(t, tc.code, rec.Code)
		})
	}
	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthHandler(HealthFunc(func() string { return "ok" })).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestBootstrapLogFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "cli")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "central.log")
	config := viper.New()
	config.Set("log.file", path)
	config.Set("log.max-size", 1)
	ctx := Bootstrap(config)
	require.NotEmpty(t, ctx.ID)
	ctx.Logger.Info("hello")
	ctx.Logger.Sync()
	content, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "hello")
	require.Contains(t, string(content), ctx.ID)
}
