package infrastructure

import (
	"context"
	"strings"

	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

// LogStatusUpdater writes status text to a logger. Used when no chat is attached.
type LogStatusUpdater struct {
	logger *zap.Logger
	taskID string
}

// NewLogStatusUpdater creates a status updater that logs every edit for taskID
func NewLogStatusUpdater(log *zap.Logger, taskID string) *LogStatusUpdater {
	return &LogStatusUpdater{logger: logger.OrNop(log), taskID: taskID}
}

// Update logs the status text, one line per edit
func (u *LogStatusUpdater) Update(_ context.Context, text string) error {
	u.logger.Info("Status", zap.String("task_id", u.taskID), zap.String("text", strings.ReplaceAll(text, "\n", " | ")))
	return nil
}
