package api

import "time"

// Mismatch один обнаруженный пропуск: снапшот есть на источниках,
// но отсутствует на таргете. Эфемерный, не персистится.
type Mismatch struct {
	GroupID         string   `json:"group_id"`
	Dataset         string   `json:"dataset"`
	TargetNodeID    string   `json:"target_node_id"`
	MissingSnapshot string   `json:"missing_snapshot"`
	SourceNodeIDs   []string `json:"source_node_ids"` // отсортированы, первый — primary source
	Reason          string   `json:"reason"`          // почему выбрано это направление
	Priority        int      `json:"priority"`
}

// ReplicationAction полностью разрешенный план доставки одного снапшота
// (до консолидации per-dataset)
type ReplicationAction struct {
	ActionType       string `json:"action_type"` // всегда "sync_snapshot"
	GroupID          string `json:"group_id"`
	Dataset          string `json:"dataset"`
	SourceNodeID     string `json:"source_node_id"`
	TargetNodeID     string `json:"target_node_id"`
	SourcePool       string `json:"source_pool"`
	TargetPool       string `json:"target_pool"`
	SnapshotName     string `json:"snapshot_name"`
	SnapshotID       string `json:"snapshot_id,omitempty"`
	StartingSnapshot string `json:"starting_snapshot,omitempty"` // пусто = full send
	EstimatedSize    *int64 `json:"estimated_size,omitempty"`
	Priority         int    `json:"priority"`
	Command          string `json:"command"`
}

// DatasetSyncInstruction главный выход ядра: ровно одна инструкция на пару
// (dataset, target) после консолидации, сколько бы отдельных пропусков ее
// ни породило.
type DatasetSyncInstruction struct {
	GroupID                 string `json:"group_id"`
	Dataset                 string `json:"dataset"`
	SourceNodeID            string `json:"source_node_id"`
	TargetNodeID            string `json:"target_node_id"`
	SourcePool              string `json:"source_pool"`
	TargetPool              string `json:"target_pool"`
	TargetDataset           string `json:"target_dataset"`
	StartingSnapshot        string `json:"starting_snapshot,omitempty"` // пусто = full send
	EndingSnapshot          string `json:"ending_snapshot"`
	SourceTransportHostname string `json:"source_transport_hostname,omitempty"`
	TargetTransportHostname string `json:"target_transport_hostname"`
	EstimatedSize           *int64 `json:"estimated_size,omitempty"`
	Command                 string `json:"command"`
}

// InstructionsResponse инструкции для ноды. Diagnostics заполняется только
// по запросу и объясняет, почему кандидаты были отброшены.
type InstructionsResponse struct {
	NodeID      string                   `json:"node_id"`
	Timestamp   time.Time                `json:"timestamp"`
	Datasets    []DatasetSyncInstruction `json:"datasets"`
	Diagnostics []string                 `json:"diagnostics,omitempty"`
}

// MismatchListResponse результат DetectMismatches
type MismatchListResponse struct {
	GroupID    string     `json:"group_id"`
	Mismatches []Mismatch `json:"mismatches"`
}

// ActionListResponse результат BuildActions
type ActionListResponse struct {
	GroupID string              `json:"group_id"`
	Actions []ReplicationAction `json:"actions"`
}

// UpdateSyncStateRequest нода сообщает результат выполнения инструкции
type UpdateSyncStateRequest struct {
	GroupID      string `json:"group_id"`
	Dataset      string `json:"dataset"`
	NodeID       string `json:"node_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SyncStatusSummary сводка статусов сходимости по группе
type SyncStatusSummary struct {
	GroupID         string         `json:"group_id"`
	TotalStates     int            `json:"total_states"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	LastUpdated     *time.Time     `json:"last_updated,omitempty"`
}
