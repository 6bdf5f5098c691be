// Package auth holds API-key identity for service callers.
package auth

import "context"

// APIKeyInfo holds the identity data for a validated API key.
type APIKeyInfo struct {
	KeyHash string
	Name    string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
