// Package tasksbridge exposes the task list over HTTP and a websocket
// stream. Handlers run against the caller's live task session.
package tasksbridge

import (
	"github.com/jrazmi/taskdeck/core/tasksession"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

type bridge struct {
	log      *logger.Logger
	sessions *tasksession.Manager
}

func newBridge(log *logger.Logger, sessions *tasksession.Manager) *bridge {
	return &bridge{
		log:      log,
		sessions: sessions,
	}
}
