package worker

import (
	"github.com/spec-kit/task-manager/internal/service"
)

// StartTaskEventWorker registers task event handlers.
func StartTaskEventWorker(taskEvents *service.TaskEventService) {
	if taskEvents == nil {
		return
	}
	taskEvents.RegisterHandlers()
}
