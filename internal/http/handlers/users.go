package handlers

import (
	"net/http"

	"nexus-chat/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type UserHandler struct {
	Users UserStore
}

// List returns the public profile of every registered user.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context())
	if err != nil {
		internalError(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(users, func(u models.User, _ int) userView {
		v := viewOf(u)
		v.Email = ""
		return v
	}))
}
