package api

// LoginRequest запрос на получение административного токена
type LoginRequest struct {
	Password string `json:"password"`
}

// TokenResponse ответ с JWT токеном администратора
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"` // секунды до истечения
}

// ErrorResponse стандартный ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}
