package models

import (
	"strings"
	"time"
)

// Snapshot представляет один снапшот, каким его сообщила нода.
// Name может быть как голым именем ("2025-11-30-000000"), так и полным
// путем ("tank/data@2025-11-30-000000") — нормализация в ShortName.
type Snapshot struct {
	ID        string    `json:"id"`      // UUID записи
	NodeID    string    `json:"node_id"` // нода, на которой снапшот существует
	Pool      string    `json:"pool"`
	Dataset   string    `json:"dataset"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`      // время создания снапшота на ноде
	Size      *int64    `json:"size,omitempty"` // байты, nil если нода не сообщила
	CreatedAt time.Time `json:"created_at"`
}

// ShortName returns the normalized snapshot identity: the part after the
// last "@", or the whole name if there is no "@". Two snapshots on
// different nodes are considered the same iff ShortName and Dataset match;
// pools may legitimately differ between nodes.
func (s *Snapshot) ShortName() string {
	return ExtractSnapshotName(s.Name)
}

// ExtractSnapshotName normalizes a snapshot name reported by a node.
// "tank/data@2025-11-30-000000" -> "2025-11-30-000000".
func ExtractSnapshotName(name string) string {
	if i := strings.LastIndex(name, "@"); i >= 0 {
		return name[i+1:]
	}
	return name
}
