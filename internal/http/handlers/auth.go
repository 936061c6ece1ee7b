package handlers

import (
	"context"
	"errors"
	"net/http"

	"nexus-chat/internal/auth"
	"nexus-chat/internal/http/middleware"
	"nexus-chat/internal/models"
	"nexus-chat/internal/repository"

	"github.com/gin-gonic/gin"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type AuthHandler struct {
	Users  UserStore
	Tokens TokenIssuer
}

type registerReq struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
}

type userView struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}

func viewOf(u models.User) userView {
	return userView{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"message": "email already registered"})
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		internalError(c, "lookup user by email", err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(c, "hash password", err)
		return
	}

	u := models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := h.Users.Create(ctx, &u); err != nil {
		internalError(c, "create user", err)
		return
	}

	middleware.Logger(c).Info("user registered", "user_id", u.ID)
	c.JSON(http.StatusCreated, viewOf(u))
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	u, err := h.Users.FindByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "wrong email/password"})
		return
	}
	if err != nil {
		internalError(c, "lookup user by email", err)
		return
	}
	if !auth.ComparePassword(u.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "wrong email/password"})
		return
	}

	token, err := h.Tokens.Issue(u.ID)
	if err != nil {
		internalError(c, "sign token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token,
		"user":        viewOf(u),
	})
}

// internalError logs err against the request and answers with a generic body.
func internalError(c *gin.Context, op string, err error) {
	middleware.Logger(c).Error(op+" failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}
