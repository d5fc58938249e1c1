package api

import (
	"vectorstore-go/internal/config"
	"vectorstore-go/internal/metrics"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the managed operations under the configured URL suffixes
func SetupRoutes(router gin.IRouter, cfg config.ServerConfig, h *Handler) {
	router.POST(cfg.InitURLSuffix, metrics.Track(metrics.OpInit), h.HandleInit)
	router.GET(cfg.SummaryURLSuffix, metrics.Track(metrics.OpSummary), h.HandleSummary)
	router.POST(cfg.SearchURLSuffix, metrics.Track(metrics.OpSearch), h.HandleSearch)
	router.POST(cfg.AddURLSuffix, metrics.Track(metrics.OpAdd), h.HandleAdd)
}
