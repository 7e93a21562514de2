package httptransport

import (
	"strings"

	"github.com/gin-gonic/gin"

	"mailverify/backend/internal/service"
)

// validateRequest 单地址验证请求
type validateRequest struct {
	Email      string `json:"email"`
	UserID     string `json:"userId"`
	VerifyPlus bool   `json:"verifyPlus"`
}

// validateEmail godoc
// @Summary 验证单个邮箱地址
// @Tags Validation
// @Accept json
// @Produce json
// @Param request body validateRequest true "待验证地址"
// @Success 200 {object} Response{data=domain.ValidationResult}
// @Router /api/v1/validate [post]
func (h *Handler) validateEmail(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		BadRequest(c, MsgEmailRequired)
		return
	}

	result := h.validation.Validate(c.Request.Context(), req.Email, service.ValidateOptions{
		UserID:     req.UserID,
		VerifyPlus: req.VerifyPlus,
	})
	Success(c, result)
}
