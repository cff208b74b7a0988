package security

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
)

// ErrInvalidToken reports a token that failed signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// ValidateJWT validates a token signature and returns its claims.
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ParticipantFromClaims extracts the verified participant identity from a
// token issued by the identity service. Tokens must carry type
// "collab_auth" plus the subject and display fields.
func ParticipantFromClaims(claims jwt.MapClaims) (*entities.Participant, error) {
	tokenType, _ := claims["type"].(string)
	if tokenType != "collab_auth" {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}

	name, _ := claims["name"].(string)
	color, _ := claims["color"].(string)
	avatar, _ := claims["avatar"].(string)

	return &entities.Participant{
		ID:     sub,
		Name:   name,
		Color:  color,
		Avatar: avatar,
	}, nil
}
