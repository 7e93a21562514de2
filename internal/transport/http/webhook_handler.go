package httptransport

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailverify/backend/internal/mailer"
)

// ========== Delivery Webhook ==========

// deliveryWebhook godoc
// @Summary 接收真实发信的投递事件
// @Description 支持直接投递的事件体和 SNS 通知封装；无法识别的事件返回 200 并忽略
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/webhooks/delivery [post]
func (h *Handler) deliveryWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	events, err := mailer.ParseEvents(body)
	switch {
	case errors.Is(err, mailer.ErrUnsupportedEvent):
		h.logger.Debug("Ignoring delivery webhook", zap.Error(err))
		Success(c, gin.H{"applied": 0})
		return
	case err != nil:
		BadRequest(c, MsgInvalidRequest)
		return
	}

	applied, err := h.validation.HandleDeliveryEvents(c.Request.Context(), events)
	if err != nil {
		h.logger.Error("Failed to apply delivery events", zap.Int("applied", applied), zap.Error(err))
		InternalError(c, MsgEventSaveFailed)
		return
	}

	Success(c, gin.H{"applied": applied})
}
