package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ragdock/auth"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

const userContextKey = "user"

// AuthMiddleware validates bearer tokens and resolves the caller's
// roles into a models.User attached to the gin context
type AuthMiddleware struct {
	validator *auth.JWTValidator
	db        *gorm.DB
}

func NewAuthMiddleware(validator *auth.JWTValidator, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, db: db}
}

// Required rejects requests without a valid token
func (m *AuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error_kind": "Unauthorized",
				"message":    "missing authorization header",
			})
			return
		}

		user, err := m.resolveUser(c, header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error_kind": "Unauthorized",
				"message":    "invalid token",
			})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// Optional attaches identity when a token is present. Anonymous
// requests proceed with no user; a present but invalid token is still
// rejected so callers cannot silently lose their identity.
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		user, err := m.resolveUser(c, header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error_kind": "Unauthorized",
				"message":    "invalid token",
			})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func (m *AuthMiddleware) resolveUser(c *gin.Context, header string) (*models.User, error) {
	claims, err := m.validator.ValidateToken(header)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:    claims.Sub,
		Email: claims.Email,
	}

	var roles []models.UserRole
	if err := m.db.WithContext(c.Request.Context()).Where("user_id = ?", user.ID).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	for _, r := range roles {
		switch r.Role {
		case models.RoleSuperAdmin:
			user.SuperAdmin = true
		case models.RoleOwnerAdmin:
			if r.OwnerSlug != nil {
				user.AdminOwners = append(user.AdminOwners, *r.OwnerSlug)
			}
		}
	}

	var memberships []models.UserOwnerAccess
	if err := m.db.WithContext(c.Request.Context()).Where("user_id = ?", user.ID).Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("failed to load owner memberships: %w", err)
	}
	for _, a := range memberships {
		user.MemberOwners = append(user.MemberOwners, a.OwnerSlug)
	}

	return user, nil
}

// CurrentUser returns the identity attached by the middleware, or nil
// for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// respondError maps the service error taxonomy to the HTTP envelope.
// Every error body is {error_kind, message}; Busy additionally sets
// Retry-After.
func respondError(c *gin.Context, err error) {
	var accessErr *services.AccessDeniedError
	var busyErr *services.BusyError
	var provErr *services.ProviderError

	switch {
	case errors.As(err, &accessErr):
		// Denials are 403: the caller may well be authenticated, they
		// just may not read this document
		c.JSON(http.StatusForbidden, gin.H{
			"error_kind": "Unauthorized",
			"message":    accessErr.Error(),
			"reason":     accessErr.Reason,
		})

	case errors.Is(err, services.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error_kind": "BadRequest",
			"message":    err.Error(),
		})

	case errors.Is(err, services.ErrGone):
		c.JSON(http.StatusGone, gin.H{
			"error_kind": "Gone",
			"message":    err.Error(),
		})

	case errors.As(err, &busyErr):
		c.Header("Retry-After", fmt.Sprintf("%d", busyErr.RetryAfter))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error_kind":  "Busy",
			"message":     busyErr.Error(),
			"retry_after": busyErr.RetryAfter,
		})

	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error_kind": "NotFound",
			"message":    err.Error(),
		})

	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error_kind": "Conflict",
			"message":    err.Error(),
		})

	case errors.Is(err, services.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error_kind": "Timeout",
			"message":    err.Error(),
		})

	case errors.As(err, &provErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error_kind": "Provider",
			"message":    err.Error(),
		})

	default:
		log.Printf("[HTTP] Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_kind": "Internal",
			"message":    "internal server error",
		})
	}
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error_kind": "BadRequest",
		"message":    err.Error(),
	})
}
