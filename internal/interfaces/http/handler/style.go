package handler

import (
	"github.com/gin-gonic/gin"

	"inknote-ai-api/internal/application/designer"
	"inknote-ai-api/internal/interfaces/http/dto"
)

// StyleHandler 风格目录处理器
type StyleHandler struct{}

// NewStyleHandler 创建风格处理器
func NewStyleHandler() *StyleHandler {
	return &StyleHandler{}
}

// List 列出全部可用风格
// GET /v1/styles
func (h *StyleHandler) List(c *gin.Context) {
	dto.Success(c, designer.ListStyles())
}
