package database

import (
	"context"
	"testing"
	"time"

	"bhs-files/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Helper for inserting a user directly; registration has no API surface.
func createTestUser(t *testing.T, username, role string) int64 {
	t.Helper()
	var userID int64
	query := `INSERT INTO users (username, password_hash, display_name, role) VALUES ($1, 'hash', 'Test User', $2) RETURNING id`
	err := testStore.pool.QueryRow(context.Background(), query, username, role).Scan(&userID)
	require.NoError(t, err)
	require.NotZero(t, userID)
	return userID
}

func TestGetUserByUsername(t *testing.T) {
	userID := createTestUser(t, "user_by_username", models.RoleStaff)

	user, err := testStore.GetUserByUsername(context.Background(), "user_by_username")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, userID, user.ID)
	require.Equal(t, models.RoleStaff, user.Role)

	user, err = testStore.GetUserByUsername(context.Background(), "nobody_here")
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestGetUserByID(t *testing.T) {
	userID := createTestUser(t, "user_by_id", models.RoleAdmin)

	user, err := testStore.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "user_by_id", user.Username)
	require.Equal(t, models.RoleAdmin, user.Role)

	user, err = testStore.GetUserByID(context.Background(), 999999)
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := createTestUser(t, "user_sessions", models.RoleStaff)

	params := CreateSessionParams{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: "refresh_token_alive",
		UserAgent:    "test-agent",
		ClientIP:     "127.0.0.1",
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
	err := testStore.CreateSession(ctx, params)
	require.NoError(t, err)

	user, err := testStore.GetUserByRefreshToken(ctx, params.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, userID, user.ID)

	// An expired session must not resolve to a user.
	expired := CreateSessionParams{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: "refresh_token_stale",
		ExpiresAt:    time.Now().Add(-1 * time.Hour),
	}
	err = testStore.CreateSession(ctx, expired)
	require.NoError(t, err)

	user, err = testStore.GetUserByRefreshToken(ctx, expired.RefreshToken)
	require.NoError(t, err)
	require.Nil(t, user)

	// Deleting by token revokes exactly that session.
	err = testStore.DeleteSessionByRefreshToken(ctx, params.RefreshToken)
	require.NoError(t, err)

	user, err = testStore.GetUserByRefreshToken(ctx, params.RefreshToken)
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestListSessionsForUser(t *testing.T) {
	ctx := context.Background()
	userID := createTestUser(t, "user_list_sessions", models.RoleStaff)

	first := CreateSessionParams{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: "list_token_old",
		UserAgent:    "agent-old",
		ExpiresAt:    time.Now().Add(12 * time.Hour),
	}
	require.NoError(t, testStore.CreateSession(ctx, first))

	second := CreateSessionParams{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: "list_token_new",
		UserAgent:    "agent-new",
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, testStore.CreateSession(ctx, second))

	// Expired sessions are filtered out of the listing.
	expired := CreateSessionParams{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: "list_token_expired",
		ExpiresAt:    time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, testStore.CreateSession(ctx, expired))

	sessions, err := testStore.ListSessionsForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, second.ID, sessions[0].ID, "newest session first")
	require.Equal(t, first.ID, sessions[1].ID)

	// A user with no sessions gets an empty slice, not nil.
	otherID := createTestUser(t, "user_list_no_sessions", models.RoleStaff)
	sessions, err = testStore.ListSessionsForUser(ctx, otherID)
	require.NoError(t, err)
	require.NotNil(t, sessions)
	require.Len(t, sessions, 0)
}

func TestDeleteAllSessionsForUser(t *testing.T) {
	ctx := context.Background()
	userID := createTestUser(t, "user_wipe_sessions", models.RoleStaff)

	for _, token := range []string{"wipe_token_1", "wipe_token_2"} {
		err := testStore.CreateSession(ctx, CreateSessionParams{
			ID:           uuid.New(),
			UserID:       userID,
			RefreshToken: token,
			ExpiresAt:    time.Now().Add(24 * time.Hour),
		})
		require.NoError(t, err)
	}

	err := testStore.DeleteAllSessionsForUser(ctx, userID)
	require.NoError(t, err)

	var count int
	err = testStore.pool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE user_id = $1`, userID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
