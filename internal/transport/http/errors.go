package httptransport

import (
	"errors"

	"mailverify/backend/internal/mailer"
	"mailverify/backend/internal/service"
	"mailverify/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	service.ErrEmptyBatch:      "批量任务不能为空",
	service.ErrNilJob:          "批量任务不能为空",
	storage.ErrJobNotFound:     "批量任务不存在",
	mailer.ErrUnsupportedEvent: "不支持的投递事件",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgEmailRequired    = "邮箱地址不能为空"
	MsgTooManyAddresses = "单个批量任务的地址数超过上限"
	MsgBatchCreateFail  = "创建批量任务失败"
	MsgBatchGetFailed   = "获取批量任务失败"
	MsgEventSaveFailed  = "保存投递结果失败"
	MsgInternalError    = "服务器内部错误，请稍后重试"
)
