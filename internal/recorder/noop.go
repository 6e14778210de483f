package recorder

import (
	"context"

	"rsi-sentry/pkg/types"
)

// NoopRecorder 未配置MySQL时使用
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordAlert(_ context.Context, _ types.Notification, _ bool, _ error) error {
	return nil
}
func (n *NoopRecorder) Recent(_ context.Context, _ string, _ int) ([]Entry, error) { return nil, nil }
func (n *NoopRecorder) Enabled() bool                                              { return false }
func (n *NoopRecorder) Close() error                                               { return nil }
