package api

import "time"

// SnapshotRecord один снапшот в отчете ноды
type SnapshotRecord struct {
	Pool      string    `json:"pool"`
	Dataset   string    `json:"dataset"`
	Name      string    `json:"name"` // голое имя или полный путь pool/dataset@name
	Timestamp time.Time `json:"timestamp"`
	Size      *int64    `json:"size,omitempty"`
}

// ReportRequest отчет ноды об инвентаре снапшотов.
// Full=true — полный инвентарь, сервер вычисляет added/removed сам.
// Full=false — дельта: Added и Removed заполняет агент по своему кешу.
type ReportRequest struct {
	Full      bool             `json:"full"`
	Snapshots []SnapshotRecord `json:"snapshots,omitempty"` // полный инвентарь при Full=true
	Added     []SnapshotRecord `json:"added,omitempty"`
	Removed   []SnapshotRecord `json:"removed,omitempty"`
}

// ReportResponse итог обработки отчета
type ReportResponse struct {
	NodeID    string    `json:"node_id"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
	Unchanged int       `json:"unchanged"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotInfo снапшот в ответах сервера
type SnapshotInfo struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	Pool      string    `json:"pool"`
	Dataset   string    `json:"dataset"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Size      *int64    `json:"size,omitempty"`
}

// SnapshotListResponse список снапшотов
type SnapshotListResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}
