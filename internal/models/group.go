package models

import "time"

// SyncGroup представляет группу нод, которые должны сходиться к одному
// состоянию снапшотов. Directional=true означает hub-and-spoke топологию:
// единственный источник правды — HubNodeID, репликация только hub→spoke.
type SyncGroup struct {
	ID                  string    `json:"id"`   // UUID группы
	Name                string    `json:"name"` // уникальное имя
	Description         string    `json:"description,omitempty"`
	Enabled             bool      `json:"enabled"`
	Directional         bool      `json:"directional"`
	HubNodeID           string    `json:"hub_node_id,omitempty"` // обязателен и должен быть членом при Directional
	SyncIntervalSeconds int       `json:"sync_interval_seconds"`
	NodeIDs             []string  `json:"node_ids"` // члены группы
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// HasNode reports whether nodeID is a member of the group.
func (g *SyncGroup) HasNode(nodeID string) bool {
	for _, id := range g.NodeIDs {
		if id == nodeID {
			return true
		}
	}
	return false
}
