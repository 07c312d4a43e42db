package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fusen-app/fusen/internal/models"
	"github.com/fusen-app/fusen/internal/permissions"
	apperrors "github.com/fusen-app/fusen/pkg/errors"
)

func TestInviteLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com", "Owner")
	guest := env.createUser(t, "guest@example.com", "Guest")

	board, err := env.boards.Create(ctx, owner.ID, "Sprint 1", "")
	require.NoError(t, err)

	created, err := env.invites.Create(ctx, owner.ID, board.ID, 0)
	require.NoError(t, err)
	require.Len(t, created.Token, 64, "32 random bytes, hex encoded")
	require.Contains(t, created.InviteLink, created.Token)

	accepted, err := env.invites.Accept(ctx, guest.ID, created.Token)
	require.NoError(t, err)
	require.Equal(t, board.ID, accepted.BoardID)
	require.Equal(t, "Sprint 1", accepted.Board)
	require.Equal(t, models.RoleMember, accepted.Role)
	require.True(t, env.guard.IsMember(ctx, guest.ID, board.ID))

	// Tokens are single use.
	another := env.createUser(t, "another@example.com", "Another")
	_, err = env.invites.Accept(ctx, another.ID, created.Token)
	require.ErrorIs(t, err, apperrors.ErrInvalidInvitation)
}

func TestInviteCustomTTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com", "Owner")

	board, err := env.boards.Create(ctx, owner.ID, "Sprint 1", "")
	require.NoError(t, err)

	now := time.Now()
	clock := func() time.Time { return now }
	guard, err := permissions.NewGuard(env.db)
	require.NoError(t, err)
	invites, err := NewInviteService(env.db, guard, InviteOptions{Clock: clock})
	require.NoError(t, err)

	created, err := invites.Create(ctx, owner.ID, board.ID, 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, now.Add(72*time.Hour), created.Invitation.ExpiresAt)

	created, err = invites.Create(ctx, owner.ID, board.ID, 0)
	require.NoError(t, err)
	require.Equal(t, now.Add(DefaultInviteTTL), created.Invitation.ExpiresAt)
}

func TestInviteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com", "Owner")
	member := env.createUser(t, "member@example.com", "Member")

	board, err := env.boards.Create(ctx, owner.ID, "Sprint 1", "")
	require.NoError(t, err)
	env.addMember(t, board.ID, member.ID, models.RoleMember)

	_, err = env.invites.Create(ctx, member.ID, board.ID, 0)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAcceptRejectsExistingMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com", "Owner")
	member := env.createUser(t, "member@example.com", "Member")

	board, err := env.boards.Create(ctx, owner.ID, "Sprint 1", "")
	require.NoError(t, err)
	env.addMember(t, board.ID, member.ID, models.RoleMember)

	created, err := env.invites.Create(ctx, owner.ID, board.ID, 0)
	require.NoError(t, err)

	_, err = env.invites.Accept(ctx, member.ID, created.Token)
	require.ErrorIs(t, err, apperrors.ErrAlreadyMember)

	// A rejected redemption leaves the token usable for someone else.
	guest := env.createUser(t, "guest@example.com", "Guest")
	_, err = env.invites.Accept(ctx, guest.ID, created.Token)
	require.NoError(t, err)
}

func TestAcceptConcurrentRedemptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com", "Owner")
	guest := env.createUser(t, "guest@example.com", "Guest")

	board, err := env.boards.Create(ctx, owner.ID, "Sprint 1", "")
	require.NoError(t, err)

	created, err := env.invites.Create(ctx, owner.ID, board.ID, 0)
	require.NoError(t, err)

	const redeemers = 8
	results := make(chan error, redeemers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < redeemers; i++ {
		go func() {
			start.Wait()
			_, err := env.invites.Accept(ctx, guest.ID, created.Token)
			results <- err
		}()
	}
	start.Done()

	var succeeded int
	for i := 0; i < redeemers; i++ {
		if err := <-results; err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)

	var memberships int64
	require.NoError(t, env.db.Model(&models.BoardMember{}).
		Where("board_id = ? AND user_id = ?", board.ID, guest.ID).
		Count(&memberships).Error)
	require.EqualValues(t, 1, memberships)
}

func TestAcceptExpiredInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com", "Owner")
	guest := env.createUser(t, "guest@example.com", "Guest")

	board, err := env.boards.Create(ctx, owner.ID, "Sprint 1", "")
	require.NoError(t, err)

	now := time.Now()
	clock := func() time.Time { return now }
	guard, err := permissions.NewGuard(env.db)
	require.NoError(t, err)
	invites, err := NewInviteService(env.db, guard, InviteOptions{Clock: clock})
	require.NoError(t, err)

	created, err := invites.Create(ctx, owner.ID, board.ID, 0)
	require.NoError(t, err)

	now = now.Add(DefaultInviteTTL + time.Minute)
	_, err = invites.Accept(ctx, guest.ID, created.Token)
	require.ErrorIs(t, err, apperrors.ErrInvalidInvitation)

	_, err = invites.Accept(ctx, guest.ID, "no-such-token")
	require.ErrorIs(t, err, apperrors.ErrInvalidInvitation)
}

func TestPurgeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com", "Owner")
	guest := env.createUser(t, "guest@example.com", "Guest")

	board, err := env.boards.Create(ctx, owner.ID, "Sprint 1", "")
	require.NoError(t, err)

	now := time.Now()
	clock := func() time.Time { return now }
	guard, err := permissions.NewGuard(env.db)
	require.NoError(t, err)
	invites, err := NewInviteService(env.db, guard, InviteOptions{Clock: clock})
	require.NoError(t, err)

	stale, err := invites.Create(ctx, owner.ID, board.ID, 0)
	require.NoError(t, err)
	redeemed, err := invites.Create(ctx, owner.ID, board.ID, 0)
	require.NoError(t, err)
	_, err = invites.Accept(ctx, guest.ID, redeemed.Token)
	require.NoError(t, err)

	now = now.Add(DefaultInviteTTL + 48*time.Hour)
	purged, err := invites.PurgeExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	var remaining int64
	require.NoError(t, env.db.Model(&models.Invitation{}).Where("token = ?", stale.Token).Count(&remaining).Error)
	require.Zero(t, remaining, "unused expired invitations are purged")

	require.NoError(t, env.db.Model(&models.Invitation{}).Where("token = ?", redeemed.Token).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining, "redeemed invitations survive for audit")
}
