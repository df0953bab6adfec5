package api

import (
	"Fitlink/internal/api/config"
	"Fitlink/internal/api/dto"
	"Fitlink/internal/api/handler"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Cfg = &config.Config{
		Server: config.ServerConfig{TrustedProxies: []string{"127.0.0.1"}},
	}
	return SetupRouter(&HandlersGroup{WsHandler: handler.NewWsHandler(nil)})
}

func TestPingUsesResponseEnvelope(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res dto.Response
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Code != 200 || res.Message != "success" {
		t.Fatalf("unexpected envelope: %+v", res)
	}
}

func TestSetupRouterReadsTrustedProxiesFromConfig(t *testing.T) {
	// 信任代理来自配置而非硬编码，构建路由不应出错
	r := newTestRouter(t)
	if r == nil {
		t.Fatalf("router should be constructed")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
