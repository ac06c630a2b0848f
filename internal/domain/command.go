package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommandStartImpexWorker wakes the import/export worker so it rescans pending tasks.
const CommandStartImpexWorker = "START_IMPEX_WORKER"

// Command is a broadcast wake-up signal. It carries no task reference.
type Command struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"command"`
	IssuedAt time.Time `json:"issued_at"`
}

func NewStartWorkerCommand() Command {
	return Command{
		ID:       uuid.New(),
		Name:     CommandStartImpexWorker,
		IssuedAt: time.Now().UTC(),
	}
}
