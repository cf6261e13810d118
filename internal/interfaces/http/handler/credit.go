package handler

import (
	"github.com/gin-gonic/gin"

	redisinfra "inknote-ai-api/internal/infrastructure/persistence/redis"
	"inknote-ai-api/internal/interfaces/http/dto"
)

// CreditHandler 信用点处理器
// 充值入口只做记账，支付结算由外部计费系统负责
type CreditHandler struct {
	ledger *redisinfra.CreditLedger
}

// NewCreditHandler 创建信用点处理器
func NewCreditHandler(ledger *redisinfra.CreditLedger) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// Balance 查询当前用户余额
// GET /v1/credits/balance
func (h *CreditHandler) Balance(c *gin.Context) {
	userID := currentUserID(c)

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.CreditBalanceResponse{UserID: userID, Balance: balance})
}

// Grant 为当前用户充值
// POST /v1/credits/grant
func (h *CreditHandler) Grant(c *gin.Context) {
	var req dto.CreditGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	userID := currentUserID(c)
	balance, err := h.ledger.Grant(c.Request.Context(), userID, req.Amount)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.CreditBalanceResponse{UserID: userID, Balance: balance})
}
