package middleware

import (
	"errors"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

const maxAuthLen = 4096

var (
	errMissingHeader = errors.New("Authorization header required")
	errHeaderTooLong = errors.New("Authorization header too long")
	errBadScheme     = errors.New("Invalid authorization header; expected Bearer token")
	errBadToken      = errors.New("Invalid or expired token")
)

// bearerClaims validates the HS256 bearer token on the request.
func bearerClaims(c *gin.Context, secret string) (jwt.MapClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		// websocket clients cannot set headers from browsers
		if token := c.Query("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}
	if authHeader == "" {
		return nil, errMissingHeader
	}
	if len(authHeader) > maxAuthLen {
		return nil, errHeaderTooLong
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errBadScheme
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errBadToken
	}
	return claims, nil
}
