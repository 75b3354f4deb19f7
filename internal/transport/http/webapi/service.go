package webapi

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"cuishou-server-go/internal/domain/customer"
	"cuishou-server-go/internal/platform/config"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
	httptransport "cuishou-server-go/internal/transport/http"
)

// Service 演示页面用到的管理接口：客户档案查询和系统状态
type Service struct {
	logger    *logging.Logger
	config    *config.Config
	customers *customer.Store
	// SessionCount 当前WebSocket会话数，由传输层注入
	sessionCount func() int
	startedAt    time.Time
}

// NewService 创建WebAPI服务
func NewService(cfg *config.Config, customers *customer.Store, sessionCount func() int, logger *logging.Logger) (*Service, error) {
	if cfg == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "webapi.new", "config is required")
	}
	if customers == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "webapi.new", "customer store is required")
	}
	if logger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "webapi.new", "logger is required")
	}

	return &Service{
		logger:       logger,
		config:       cfg,
		customers:    customers,
		sessionCount: sessionCount,
		startedAt:    time.Now(),
	}, nil
}

// Register 注册HTTP路由
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/customers", s.handleCustomersList)
	router.GET("/customers/:id", s.handleCustomerGet)
	router.GET("/system/status", s.handleSystemStatus)
	router.GET("/health", s.handleHealth)

	s.logger.InfoTag("HTTP", "WebAPI服务路由注册完成")
	return nil
}

// handleCustomersList 返回全部演示客户档案
func (s *Service) handleCustomersList(c *gin.Context) {
	records, err := s.customers.List()
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "读取客户档案失败", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, records, "")
}

// handleCustomerGet 按客户编号返回单条档案
func (s *Service) handleCustomerGet(c *gin.Context) {
	id := c.Param("id")
	record, err := s.customers.Get(id)
	if err != nil {
		httptransport.RespondError(c, http.StatusNotFound, "客户档案不存在: "+id, nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, record, "")
}

// SystemStatus 系统运行状态
type SystemStatus struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Sessions       int     `json:"sessions"`
	Goroutines     int     `json:"goroutines"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	ASRModel       string  `json:"asr_model"`
	LLMModel       string  `json:"llm_model"`
	TTSVoice       string  `json:"tts_voice"`
}

// handleSystemStatus 返回进程和主机的运行指标
func (s *Service) handleSystemStatus(c *gin.Context) {
	status := SystemStatus{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		ASRModel:      s.config.ASR.Model,
		LLMModel:      s.config.LLM.ModelName,
		TTSVoice:      s.config.TTS.Voice,
	}
	if s.sessionCount != nil {
		status.Sessions = s.sessionCount()
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemUsedPercent = vm.UsedPercent
	}

	httptransport.RespondSuccess(c, http.StatusOK, status, "")
}

// handleHealth 存活探针
func (s *Service) handleHealth(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"status": "ok"}, "")
}
