package api

import "time"

// RegisterNodeRequest запрос на регистрацию ноды.
// Повторная регистрация существующего hostname ротирует API ключ и
// удаляет весь накопленный инвентарь снапшотов ноды.
type RegisterNodeRequest struct {
	Hostname          string `json:"hostname"`
	Platform          string `json:"platform"`
	TransportHostname string `json:"transport_hostname,omitempty"`
	TransportUser     string `json:"transport_user,omitempty"`
	TransportPort     int    `json:"transport_port,omitempty"`
}

// Node публичное представление ноды (без API ключа)
type Node struct {
	ID                 string     `json:"id"`
	Hostname           string     `json:"hostname"`
	Platform           string     `json:"platform"`
	ConnectivityStatus string     `json:"connectivity_status"`
	TransportHostname  string     `json:"transport_hostname,omitempty"`
	TransportUser      string     `json:"transport_user,omitempty"`
	TransportPort      int        `json:"transport_port"`
	LastSeen           *time.Time `json:"last_seen,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// RegisterNodeResponse ответ на регистрацию. APIKey возвращается только
// здесь, один раз — сервер хранит лишь его хеш.
type RegisterNodeResponse struct {
	Node   Node   `json:"node"`
	APIKey string `json:"api_key"`
}

// NodeListResponse список нод
type NodeListResponse struct {
	Nodes []Node `json:"nodes"`
}
