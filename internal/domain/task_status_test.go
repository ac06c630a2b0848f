package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTaskType(t *testing.T) {
	tt, ok := ParseTaskType("export")
	assert.True(t, ok)
	assert.Equal(t, TaskTypeExport, tt)

	tt, ok = ParseTaskType("import")
	assert.True(t, ok)
	assert.Equal(t, TaskTypeImport, tt)

	for _, bad := range []string{"", "Export", "sync", "delete"} {
		_, ok := ParseTaskType(bad)
		assert.False(t, ok, bad)
	}
}

func TestTaskType_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		cur  TaskStatus
		next TaskStatus
		want bool
	}{
		{"pending to inprogress", TaskStatusPending, TaskStatusInProgress, true},
		{"pending straight to failed", TaskStatusPending, TaskStatusFailed, true},
		{"inprogress to completed", TaskStatusInProgress, TaskStatusCompleted, true},
		{"inprogress to failed", TaskStatusInProgress, TaskStatusFailed, true},
		{"same status is idempotent", TaskStatusInProgress, TaskStatusInProgress, true},
		{"terminal repeats itself", TaskStatusCompleted, TaskStatusCompleted, true},
		{"backwards", TaskStatusInProgress, TaskStatusPending, false},
		{"out of terminal", TaskStatusCompleted, TaskStatusInProgress, false},
		{"between terminals", TaskStatusFailed, TaskStatusCompleted, false},
		{"unknown status", TaskStatusPending, TaskStatus("exploded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TaskTypeExport.CanTransition(tt.cur, tt.next))
			assert.Equal(t, tt.want, TaskTypeImport.CanTransition(tt.cur, tt.next))
		})
	}
}

func TestTaskType_StatusesIsACopy(t *testing.T) {
	s := TaskTypeExport.Statuses()
	s[0] = "tampered"
	assert.Equal(t, TaskStatusPending, TaskTypeExport.Statuses()[0])
	assert.Empty(t, TaskType("sync").Statuses())
}
