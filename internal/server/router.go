package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IlliaDrahun/multichain/internal/handler"
	"github.com/IlliaDrahun/multichain/pkg/monitor"
)

// Handlers 路由依赖的业务处理器
type Handlers struct {
	Transaction *handler.TransactionHandler
	WS          *handler.WSHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.WS.Subscribe)

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/chains", h.Transaction.Chains)
		api.POST("/transactions", h.Transaction.Create)
		api.GET("/transactions/:userAddress", h.Transaction.ListByUser)
		api.GET("/transaction/:id", h.Transaction.Get)
	}

	return r
}
