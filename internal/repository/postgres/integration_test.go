//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jurisprep/authd/internal/model"
	repo "github.com/jurisprep/authd/internal/repository/postgres"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "authd_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/authd_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestProfileRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	pr := repo.NewProfileRepository(conn)
	userID := uuid.New()

	_, err = pr.GetByUserID(ctx, userID)
	require.ErrorIs(t, err, model.ErrNotFound)

	saved, err := pr.Upsert(ctx, model.Profile{
		UserID:      userID,
		DisplayName: "Alex",
		UserType:    model.UserTypeStudent,
	})
	require.NoError(t, err)
	require.Equal(t, userID, saved.UserID)
	require.Equal(t, "Alex", saved.DisplayName)
	require.False(t, saved.CreatedAt.IsZero())

	// Upsert on the same user id updates the one existing row.
	again, err := pr.Upsert(ctx, model.Profile{
		UserID:      userID,
		DisplayName: "Alexandra",
		UserType:    model.UserTypeStudent,
	})
	require.NoError(t, err)
	require.Equal(t, userID, again.UserID)
	require.Equal(t, "Alexandra", again.DisplayName)
	require.Equal(t, saved.CreatedAt, again.CreatedAt)

	got, err := pr.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, "Alexandra", got.DisplayName)

	got.OnboardingCompleted = true
	got.AvatarURL = "/avatars/" + userID.String()
	updated, err := pr.Update(ctx, got)
	require.NoError(t, err)
	require.True(t, updated.OnboardingCompleted)
	require.Equal(t, "/avatars/"+userID.String(), updated.AvatarURL)

	_, err = pr.Update(ctx, model.Profile{UserID: uuid.New()})
	require.ErrorIs(t, err, model.ErrNotFound)
}
