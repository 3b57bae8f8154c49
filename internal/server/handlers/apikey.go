package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// apiKeyPrefix помогает отличить ключ в логах и конфигах агентов
const apiKeyPrefix = "zfsw_"

// GenerateAPIKey создает новый API ключ ноды: 32 случайных байта в base64
func GenerateAPIKey() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(keyBytes), nil
}

// HashAPIKey возвращает sha256 hex ключа. В БД хранится только хеш.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
