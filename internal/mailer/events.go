package mailer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventType 投递事件类型
type EventType string

const (
	EventDelivery  EventType = "Delivery"
	EventBounce    EventType = "Bounce"
	EventComplaint EventType = "Complaint"
)

// BounceType 退信类型
type BounceType string

const (
	BouncePermanent BounceType = "Permanent"
	BounceTransient BounceType = "Transient"
	BounceUndet     BounceType = "Undetermined"
)

// ErrUnsupportedEvent 无法识别的事件
var ErrUnsupportedEvent = errors.New("mailer: unsupported event")

// DeliveryEvent 单个收件人的投递结果
type DeliveryEvent struct {
	Type       EventType
	Email      string
	BounceType BounceType
	Diagnostic string
}

// snsEnvelope 经 SNS 转发时外层的包装
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type sesEvent struct {
	EventType        EventType `json:"eventType"`
	NotificationType EventType `json:"notificationType"`
	Mail             struct {
		Destination []string `json:"destination"`
	} `json:"mail"`
	Bounce *struct {
		BounceType        BounceType `json:"bounceType"`
		BouncedRecipients []struct {
			EmailAddress   string `json:"emailAddress"`
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		ComplainedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
	Delivery *struct {
		Recipients []string `json:"recipients"`
	} `json:"delivery"`
}

// ParseEvents 解析配置集事件回调的请求体
func ParseEvents(body []byte) ([]DeliveryEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		body = []byte(env.Message)
	}

	var ev sesEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	kind := ev.EventType
	if kind == "" {
		kind = ev.NotificationType
	}

	var out []DeliveryEvent
	switch kind {
	case EventDelivery:
		recipients := ev.Mail.Destination
		if ev.Delivery != nil && len(ev.Delivery.Recipients) > 0 {
			recipients = ev.Delivery.Recipients
		}
		for _, r := range recipients {
			out = append(out, DeliveryEvent{Type: EventDelivery, Email: normalize(r)})
		}
	case EventBounce:
		if ev.Bounce == nil {
			return nil, fmt.Errorf("%w: bounce without details", ErrUnsupportedEvent)
		}
		for _, r := range ev.Bounce.BouncedRecipients {
			out = append(out, DeliveryEvent{
				Type:       EventBounce,
				Email:      normalize(r.EmailAddress),
				BounceType: ev.Bounce.BounceType,
				Diagnostic: r.DiagnosticCode,
			})
		}
	case EventComplaint:
		if ev.Complaint == nil {
			return nil, fmt.Errorf("%w: complaint without details", ErrUnsupportedEvent)
		}
		for _, r := range ev.Complaint.ComplainedRecipients {
			out = append(out, DeliveryEvent{Type: EventComplaint, Email: normalize(r.EmailAddress)})
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, kind)
	}
	return out, nil
}

// normalize 去掉 "Name <addr>" 形式的显示名
func normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	return strings.ToLower(addr)
}
