package models

import "time"

// SyncStatus статус сходимости пары (группа, dataset, нода)
type SyncStatus string

const (
	SyncStatusInSync    SyncStatus = "in_sync"
	SyncStatusOutOfSync SyncStatus = "out_of_sync"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusConflict  SyncStatus = "conflict"
	SyncStatusError     SyncStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusInSync, SyncStatusOutOfSync, SyncStatusSyncing,
		SyncStatusConflict, SyncStatusError:
		return true
	}
	return false
}

// SyncState персистентный статус сходимости. Создается лениво при первой
// оценке пары (группа, dataset) и обновляется координатором после каждого
// решения; ядро никогда его не удаляет.
type SyncState struct {
	ID           string     `json:"id"`
	GroupID      string     `json:"group_id"`
	Dataset      string     `json:"dataset"`
	NodeID       string     `json:"node_id"`
	Status       SyncStatus `json:"status"`
	LastSync     *time.Time `json:"last_sync,omitempty"`  // последний переход в in_sync
	LastCheck    *time.Time `json:"last_check,omitempty"` // последняя оценка
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
