package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ActorClaim identifies the operator behind a request.
type ActorClaim struct {
	Name string `json:"name"`
	jwt.StandardClaims
}

func getJwtSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// JwtEnabled reports whether bearer tokens are required to identify the actor.
func JwtEnabled() bool {
	return len(getJwtSecret()) > 0
}

func JwtGenerate(actorId string, name string, lifespan time.Duration) (string, error) {
	if !JwtEnabled() {
		return "", errors.New("JWT_SECRET is not set")
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &ActorClaim{
		Name: name,
		StandardClaims: jwt.StandardClaims{
			Subject:   actorId,
			ExpiresAt: time.Now().Add(lifespan).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})
	return t.SignedString(getJwtSecret())
}

func JwtValidate(token string) (*ActorClaim, error) {
	claims := &ActorClaim{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return getJwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
