package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darry-Jnr/codemap-server-go/internal/config"
	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("starts active with no members", func(t *testing.T) {
		f := newServiceFixture()

		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)

		assert.Equal(t, model.GroupStatusActive, group.Status)
		assert.Equal(t, "leader-1", group.OwnerID)
		assert.Empty(t, group.Members)
		assert.Equal(t, config.MaxGroupMembers, group.MaxMembers)
		assert.Len(t, group.Code, 8)
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.CreateGroup(ctx, "leader-1", "")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMissingRequired))
	})
}

func TestJoinGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("appends member in join order", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)

		g1, err := f.svc.JoinGroup(ctx, group.Code, "member-1", "Grace")
		require.NoError(t, err)
		require.Len(t, g1.Members, 1)

		g2, err := f.svc.JoinGroup(ctx, group.Code, "member-2", "Linus")
		require.NoError(t, err)
		require.Len(t, g2.Members, 2)
		assert.Equal(t, "member-1", g2.Members[0].ID)
		assert.Equal(t, "member-2", g2.Members[1].ID)
	})

	t.Run("rejoin is an idempotent success", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)

		_, err = f.svc.JoinGroup(ctx, group.Code, "member-1", "Grace")
		require.NoError(t, err)

		again, err := f.svc.JoinGroup(ctx, group.Code, "member-1", "Grace")
		require.NoError(t, err)
		assert.Len(t, again.Members, 1)
	})

	t.Run("leader cannot join own group", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)

		_, err = f.svc.JoinGroup(ctx, group.Code, "leader-1", "Ada")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSelfJoinRejected))
	})

	t.Run("capacity boundary", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)

		var last *model.GroupSession
		for i := 0; i < config.MaxGroupMembers; i++ {
			last, err = f.svc.JoinGroup(ctx, group.Code, fmt.Sprintf("member-%d", i), fmt.Sprintf("Member %d", i))
			require.NoError(t, err)
		}
		assert.Len(t, last.Members, config.MaxGroupMembers)
		assert.True(t, last.Full())

		_, err = f.svc.JoinGroup(ctx, group.Code, "member-overflow", "Late")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeGroupFull))
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.JoinGroup(ctx, "ZZZZ9999", "member-1", "Grace")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCodeNotFound))
	})

	t.Run("expired group returns CODE_EXPIRED", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)
		f.sessions.expire(group.ID)

		_, err = f.svc.JoinGroup(ctx, group.Code, "member-1", "Grace")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCodeExpired))
	})

	t.Run("ended group no longer matches", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)
		require.NoError(t, f.svc.EndGroup(ctx, group.ID, "leader-1"))

		_, err = f.svc.JoinGroup(ctx, group.Code, "member-1", "Grace")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCodeNotFound))
	})
}

func TestEndGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("leader ends the session for everyone", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)
		_, err = f.svc.JoinGroup(ctx, group.Code, "member-1", "Grace")
		require.NoError(t, err)

		err = f.svc.EndGroup(ctx, group.ID, "leader-1")
		require.NoError(t, err)

		snap, err := f.svc.Snapshot(ctx, group.ID)
		require.NoError(t, err)
		require.NotNil(t, snap.Group)
		assert.Equal(t, model.GroupStatusCancelled, snap.Group.Status)
	})

	t.Run("members cannot end the session", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)
		_, err = f.svc.JoinGroup(ctx, group.Code, "member-1", "Grace")
		require.NoError(t, err)

		err = f.svc.EndGroup(ctx, group.ID, "member-1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotTheLeader))
	})

	t.Run("ending twice is terminal", func(t *testing.T) {
		f := newServiceFixture()
		group, err := f.svc.CreateGroup(ctx, "leader-1", "Ada")
		require.NoError(t, err)

		require.NoError(t, f.svc.EndGroup(ctx, group.ID, "leader-1"))
		err = f.svc.EndGroup(ctx, group.ID, "leader-1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionTerminal))
	})
}
