package models

import "time"

// Node представляет ZFS-систему, которая отправляет инвентарь снапшотов
type Node struct {
	ID                 string     `json:"id"`                  // UUID ноды
	Hostname           string     `json:"hostname"`            // уникальный hostname
	Platform           string     `json:"platform"`            // ос/платформа (linux, freebsd, ...)
	ConnectivityStatus string     `json:"connectivity_status"` // online / offline / unknown
	TransportHostname  string     `json:"transport_hostname"`  // hostname для ssh-доставки (пусто = нода не может быть таргетом)
	TransportUser      string     `json:"transport_user"`      // ssh пользователь (опционально)
	TransportPort      int        `json:"transport_port"`      // ssh порт, по умолчанию 22
	LastSeen           *time.Time `json:"last_seen,omitempty"` // время последнего обращения по API ключу
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Addressable reports whether the node can be a replication target.
// Нода без transport hostname недостижима для zfs receive.
func (n *Node) Addressable() bool {
	return n.TransportHostname != ""
}
