package utils

import (
	stderrors "errors"
	"time"

	"calendar-engine/core/config"
	"calendar-engine/core/constants"
	"calendar-engine/core/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenData struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Scope          string
}

// GenerateAccessToken issues a signed bearer token for the management API.
func GenerateAccessToken(organizationID, userID uuid.UUID, ttl time.Duration) (string, error) {
	cfg, ok := config.GetSafe()
	if !ok {
		return "", errors.NewAppError(errors.ErrInternalServer, "Config not initialized", nil)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"org_id": organizationID.String(),
		"sub":    userID.String(),
		"scope":  constants.ScopeTokenAccess,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWT.Secret))
}

// ValidateAndParseToken verifies the signature and expiry of a bearer token
// and extracts its organization and user claims.
func ValidateAndParseToken(tokenString string) (*TokenData, *errors.AppError) {
	cfg, ok := config.GetSafe()
	if !ok {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Config not initialized", nil)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewAppError(errors.ErrInvalidTokenFormat, "Unexpected signing method", nil)
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.NewAppError(errors.ErrTokenExpired, "Token expired", err)
		}
		return nil, errors.NewAppError(errors.ErrUnauthorized, "Invalid token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.NewAppError(errors.ErrInvalidTokenFormat, "Invalid token claims", nil)
	}

	data := &TokenData{}

	if orgStr, ok := claims["org_id"].(string); ok {
		if orgID, err := uuid.Parse(orgStr); err == nil {
			data.OrganizationID = orgID
		}
	}
	if data.OrganizationID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidTokenFormat, "Missing organization claim", nil)
	}

	if sub, ok := claims["sub"].(string); ok {
		if userID, err := uuid.Parse(sub); err == nil {
			data.UserID = userID
		}
	}
	if scope, ok := claims["scope"].(string); ok {
		data.Scope = scope
	}

	return data, nil
}
