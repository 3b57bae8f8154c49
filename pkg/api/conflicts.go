package api

import "time"

// ConflictNodeInfo атрибуты спорного снапшота на конкретной ноде
type ConflictNodeInfo struct {
	Timestamp  time.Time `json:"timestamp"`
	Size       *int64    `json:"size,omitempty"`
	SnapshotID string    `json:"snapshot_id"`
}

// Conflict семантический конфликт: одноименный снапшот с расходящимися
// атрибутами на разных нодах. Эфемерный, не персистится.
type Conflict struct {
	Type         string                      `json:"type"`
	SnapshotName string                      `json:"snapshot_name"`
	Dataset      string                      `json:"dataset"`
	GroupID      string                      `json:"group_id"`
	Nodes        map[string]ConflictNodeInfo `json:"nodes"`
	Severity     string                      `json:"severity"` // low / medium / high
	DetectedAt   time.Time                   `json:"detected_at"`
}

// ResolveConflictRequest запрос на разрешение конфликта
type ResolveConflictRequest struct {
	Conflict Conflict `json:"conflict"`
	Strategy string   `json:"strategy"`
}

// ResolutionAction корректирующее действие: доставить снапшот
// source-of-truth ноды на расходящуюся ноду
type ResolutionAction struct {
	ActionType   string `json:"action_type"` // всегда "sync_snapshot"
	SourceNodeID string `json:"source_node_id"`
	TargetNodeID string `json:"target_node_id"`
	SnapshotID   string `json:"snapshot_id,omitempty"`
	SnapshotName string `json:"snapshot_name"`
	Dataset      string `json:"dataset"`
	Reason       string `json:"reason"`
}

// Resolution результат применения стратегии к конфликту
type Resolution struct {
	Status     string             `json:"status"` // resolved / requires_manual_intervention / ignored
	Strategy   string             `json:"strategy,omitempty"`
	Conflict   Conflict           `json:"conflict"`
	Actions    []ResolutionAction `json:"actions,omitempty"`
	Message    string             `json:"message,omitempty"`
	ResolvedAt time.Time          `json:"resolved_at"`
}

// ConflictListResponse результат DetectConflicts
type ConflictListResponse struct {
	GroupID   string     `json:"group_id"`
	Conflicts []Conflict `json:"conflicts"`
}
