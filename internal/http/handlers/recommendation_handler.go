// README: Recommendation handler for batch media metadata.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripalbum/internal/http/middleware"
	"tripalbum/internal/modules/recommendation"
	"tripalbum/internal/types"
)

type RecommendationHandler struct {
	analyzer Analyzer
}

func NewRecommendationHandler(analyzer Analyzer) *RecommendationHandler {
	return &RecommendationHandler{analyzer: analyzer}
}

type analyzeRequest struct {
	MediaInfoList []recommendation.MediaInfo `json:"mediaInfoList" binding:"required,dive"`
}

func (h *RecommendationHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body")
		return
	}
	items, err := h.analyzer.Analyze(c.Request.Context(), types.ID(middleware.CallerUID(c)), req.MediaInfoList)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if items == nil {
		items = []recommendation.Item{}
	}
	writeJSON(c, http.StatusOK, gin.H{"recommendations": items})
}
