package alerting

import (
	"context"

	"oracle-miss-alerts/internal/report"
)

// Notifier 定义报告投递接口。每个周期恰好投递一条结构化报告。
type Notifier interface {
	Notify(ctx context.Context, msg report.Message) error
}
