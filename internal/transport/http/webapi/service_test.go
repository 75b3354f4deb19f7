package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"cuishou-server-go/internal/domain/customer"
	"cuishou-server-go/internal/platform/config"
	"cuishou-server-go/internal/platform/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(&logging.Config{Level: "error", Dir: t.TempDir(), Filename: "test.log"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := testLogger(t)
	dsn := filepath.Join(t.TempDir(), "customers.db")
	customers, err := customer.NewStore(customer.Config{DSN: dsn, Seed: true}, logger)
	if err != nil {
		t.Fatalf("创建客户存储失败: %v", err)
	}
	t.Cleanup(func() { customers.Close() })

	cfg := &config.Config{}
	cfg.ASR.Model = "paraformer-realtime-8k-v2"
	cfg.LLM.ModelName = "qwen-plus"
	cfg.TTS.Voice = "zh-CN-XiaoxiaoNeural"

	svc, err := NewService(cfg, customers, func() int { return 2 }, logger)
	if err != nil {
		t.Fatalf("创建WebAPI服务失败: %v", err)
	}

	engine := gin.New()
	if err := svc.Register(context.Background(), engine.Group("/api")); err != nil {
		t.Fatalf("注册路由失败: %v", err)
	}
	return engine
}

func TestCustomersList(t *testing.T) {
	engine := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Success bool              `json:"success"`
		Data    []customer.Record `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if !resp.Success {
		t.Fatal("success = false")
	}
	if len(resp.Data) != 4 {
		t.Fatalf("expected 4 customers, got %d", len(resp.Data))
	}
	if resp.Data[0].CustomerID != "DEMO_001" {
		t.Fatalf("first customer = %s", resp.Data[0].CustomerID)
	}
}

func TestCustomerGet(t *testing.T) {
	engine := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/customers/DEMO_003", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data customer.Record `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if resp.Data.Name != "王强" || resp.Data.Balance != 25000 {
		t.Fatalf("record = %+v", resp.Data)
	}
}

func TestCustomerGetNotFound(t *testing.T) {
	engine := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/customers/DEMO_999", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSystemStatus(t *testing.T) {
	engine := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data SystemStatus `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if resp.Data.Sessions != 2 {
		t.Fatalf("sessions = %d, want 2", resp.Data.Sessions)
	}
	if resp.Data.Goroutines <= 0 {
		t.Fatal("goroutines not reported")
	}
	if resp.Data.LLMModel != "qwen-plus" {
		t.Fatalf("llm model = %s", resp.Data.LLMModel)
	}
}
