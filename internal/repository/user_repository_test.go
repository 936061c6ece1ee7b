package repository

import (
	"context"
	"testing"

	"nexus-chat/internal/database/dbtest"
	"nexus-chat/internal/models"

	"github.com/stretchr/testify/require"
)

func Test_User_Create_And_Find(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(dbtest.New(t))

	u := models.User{FirstName: "Alice", LastName: "Liddell", Email: "alice@example.com", PasswordHash: "x"}
	req.NoError(repo.Create(ctx, &u))
	req.NotEmpty(u.ID)

	byID, err := repo.FindByID(ctx, u.ID)
	req.NoError(err)
	req.Equal("Alice Liddell", byID.DisplayName())

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	req.NoError(err)
	req.Equal(u.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, "missing")
	req.ErrorIs(err, ErrNotFound)

	users, err := repo.List(ctx)
	req.NoError(err)
	req.Len(users, 1)
}

func Test_User_Duplicate_Email(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(dbtest.New(t))

	req.NoError(repo.Create(ctx, &models.User{FirstName: "A", Email: "a@example.com", PasswordHash: "x"}))
	req.Error(repo.Create(ctx, &models.User{FirstName: "B", Email: "a@example.com", PasswordHash: "x"}))
}
