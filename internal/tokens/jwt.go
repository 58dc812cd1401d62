package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// ClipClaims scope a token to one clip. Alert emails link to clips, so the
// link must work without a dashboard session but must not open up the whole
// clip store.
type ClipClaims struct {
	ClipID    string `json:"clip_id"`
	ProjectID string `json:"project_id"`
	jwt.RegisteredClaims
}

type Manager struct {
	signingKey []byte
	ttl        time.Duration
}

func NewManager(signingKey string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{signingKey: []byte(signingKey), ttl: ttl}
}

// GenerateClipToken mints a token granting access to a single clip.
func (m *Manager) GenerateClipToken(clipID, projectID string) (string, error) {
	now := time.Now().UTC()
	claims := ClipClaims{
		ClipID:    clipID,
		ProjectID: projectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(), // jti
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// Add Kid for future key rotation support, even if using single key now
	token.Header["kid"] = "v1"

	return token.SignedString(m.signingKey)
}

// ValidateClipToken checks signature and expiry and returns the claims.
func (m *Manager) ValidateClipToken(tokenString string) (*ClipClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ClipClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ClipClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
