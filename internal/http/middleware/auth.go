package middleware

import (
	"context"
	"net/http"
	"strings"

	"nexus-chat/internal/chat"
	"nexus-chat/internal/models"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

type TokenParser interface {
	Parse(token string) (string, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Resolver turns a session token into the caller's identity.
type Resolver struct {
	Tokens TokenParser
	Users  UserFinder
}

// Resolve verifies token and loads the user it names. The display name is
// read at resolve time so messages snapshot the current name.
func (r Resolver) Resolve(ctx context.Context, token string) (*chat.Identity, error) {
	userID, err := r.Tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := r.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &chat.Identity{UserID: u.ID, DisplayName: u.DisplayName()}, nil
}

func AuthMiddleware(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			Logger(c).Info("rejected session", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}

		SetIdentity(c, id)
		c.Next()
	}
}

func SetIdentity(c *gin.Context, id *chat.Identity) {
	c.Set(identityKey, id)
}

// Identity returns the identity set by AuthMiddleware, or nil.
func Identity(c *gin.Context) *chat.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*chat.Identity)
	return id
}
