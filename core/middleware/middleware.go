package middleware

import (
	"strings"

	"calendar-engine/core/constants"
	"calendar-engine/core/controller"
	"calendar-engine/core/errors"
	"calendar-engine/core/utils"

	"github.com/labstack/echo/v4"
)

type Middleware struct{}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

// AuthMiddleware validates the bearer token and stores the organization
// and user claims in the echo context for handlers.
func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return controller.NewErrorResponse(401, errors.ErrMissingAuthorizationHeader, "Missing Authorization header")
			}

			if !strings.HasPrefix(header, "Bearer ") {
				return controller.NewErrorResponse(401, errors.ErrInvalidTokenFormat, "Authorization header must be a Bearer token")
			}
			token := strings.TrimPrefix(header, "Bearer ")

			tokenData, appErr := utils.ValidateAndParseToken(token)
			if appErr != nil {
				return controller.NewErrorResponse(401, appErr.Code, appErr.Message)
			}

			if tokenData.Scope != constants.ScopeTokenAccess {
				return controller.NewErrorResponse(403, errors.ErrForbidden, "Token scope does not allow this operation")
			}

			c.Set(constants.ContextOrganizationID, tokenData.OrganizationID)
			c.Set(constants.ContextUserID, tokenData.UserID)
			c.Set(constants.ContextTokenData, tokenData)

			return next(c)
		}
	}
}
