package api

import "time"

// CreateGroupRequest запрос на создание sync-группы
type CreateGroupRequest struct {
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	Enabled             *bool    `json:"enabled,omitempty"` // по умолчанию true
	Directional         bool     `json:"directional"`
	HubNodeID           string   `json:"hub_node_id,omitempty"`
	SyncIntervalSeconds int      `json:"sync_interval_seconds,omitempty"`
	NodeIDs             []string `json:"node_ids"`
}

// UpdateGroupRequest частичное обновление группы; nil-поля не трогаются
type UpdateGroupRequest struct {
	Description         *string  `json:"description,omitempty"`
	Enabled             *bool    `json:"enabled,omitempty"`
	Directional         *bool    `json:"directional,omitempty"`
	HubNodeID           *string  `json:"hub_node_id,omitempty"`
	SyncIntervalSeconds *int     `json:"sync_interval_seconds,omitempty"`
	NodeIDs             []string `json:"node_ids,omitempty"`
}

// Group публичное представление sync-группы
type Group struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	Enabled             bool      `json:"enabled"`
	Directional         bool      `json:"directional"`
	HubNodeID           string    `json:"hub_node_id,omitempty"`
	SyncIntervalSeconds int       `json:"sync_interval_seconds"`
	NodeIDs             []string  `json:"node_ids"`
	CreatedAt           time.Time `json:"created_at"`
}

// GroupListResponse список групп
type GroupListResponse struct {
	Groups []Group `json:"groups"`
}
