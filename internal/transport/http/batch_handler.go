package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailverify/backend/internal/service"
	"mailverify/backend/internal/storage"
)

// createBatchRequest 创建批量任务请求
type createBatchRequest struct {
	Emails     []string `json:"emails"`
	UserID     string   `json:"userId"`
	VerifyPlus bool     `json:"verifyPlus"`
}

// createBatch godoc
// @Summary 创建批量验证任务
// @Description 任务在后台执行，通过查询接口获取进度与统计
// @Tags Batches
// @Accept json
// @Produce json
// @Param request body createBatchRequest true "地址列表"
// @Success 202 {object} Response{data=domain.BatchJob}
// @Router /api/v1/batches [post]
func (h *Handler) createBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if len(req.Emails) > MaxBatchAddresses {
		UnprocessableEntity(c, MsgTooManyAddresses)
		return
	}

	job, err := h.batches.Submit(c.Request.Context(), req.Emails, req.UserID, req.VerifyPlus)
	switch {
	case errors.Is(err, service.ErrEmptyBatch):
		BadRequest(c, GetErrorMessage(err))
		return
	case err != nil:
		h.logger.Error("Failed to create batch job", zap.Error(err))
		InternalError(c, MsgBatchCreateFail)
		return
	}

	Accepted(c, job)
}

// getBatch godoc
// @Summary 查询批量任务
// @Tags Batches
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} Response{data=domain.BatchJob}
// @Router /api/v1/batches/{id} [get]
func (h *Handler) getBatch(c *gin.Context) {
	job, err := h.batches.GetJob(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		NotFound(c, GetErrorMessage(err))
		return
	case err != nil:
		h.logger.Error("Failed to get batch job", zap.String("job_id", c.Param("id")), zap.Error(err))
		InternalError(c, MsgBatchGetFailed)
		return
	}

	Success(c, job)
}
