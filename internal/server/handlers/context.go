package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

const (
	// NodeIDKey ключ для хранения id аутентифицированной ноды в контексте
	NodeIDKey contextKey = "node_id"
	// AdminUserKey ключ для хранения имени администратора в контексте
	AdminUserKey contextKey = "admin_user"
)

// GetNodeID извлекает id ноды из контекста запроса
func GetNodeID(ctx context.Context) (string, bool) {
	nodeID, ok := ctx.Value(NodeIDKey).(string)
	return nodeID, ok
}

// GetAdminUser извлекает имя администратора из контекста запроса
func GetAdminUser(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(AdminUserKey).(string)
	return username, ok
}

// WithNodeID кладет id ноды в контекст (используется auth middleware)
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, NodeIDKey, nodeID)
}

// WithAdminUser кладет имя администратора в контекст
func WithAdminUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, AdminUserKey, username)
}
