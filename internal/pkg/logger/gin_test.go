package logger

import (
	"Homestead/internal/api/config"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveOnce(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	prev := LogWriter
	LogWriter = &buf
	t.Cleanup(func() { LogWriter = prev })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupGin(r)
	r.GET("/api/hello", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/hello", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	return buf.String()
}

func TestSetupGin_WithoutConfig(t *testing.T) {
	prev := config.Cfg
	config.Cfg = nil
	t.Cleanup(func() { config.Cfg = prev })

	out := serveOnce(t)
	assert.Contains(t, out, `"msg":"GIN_ACCESS"`)
	assert.Contains(t, out, `"log_token":""`)
	assert.Contains(t, out, `"status":204`)
}

func TestSetupGin_CarriesLogstashFields(t *testing.T) {
	prev := config.Cfg
	config.Cfg = &config.Config{Logstash: config.LogstashConfig{Token: "tok", Index: "im-access"}}
	t.Cleanup(func() { config.Cfg = prev })

	out := serveOnce(t)
	assert.Contains(t, out, `"log_token":"tok"`)
	assert.Contains(t, out, `"target_index":"im-access"`)
}
