package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

func TestCreateSolo(t *testing.T) {
	ctx := context.Background()

	t.Run("creates waiting session with share code", func(t *testing.T) {
		f := newServiceFixture()

		solo, err := f.svc.CreateSolo(ctx, "user-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		assert.Equal(t, model.SoloStatusWaiting, solo.Status)
		assert.Equal(t, "user-1", solo.OwnerID)
		assert.Equal(t, "Ada", solo.OwnerName)
		assert.Len(t, solo.Code, 8)
		assert.Nil(t, solo.FinderID)
	})

	t.Run("quick variant expires in 30 minutes", func(t *testing.T) {
		f := newServiceFixture()

		solo, err := f.svc.CreateSolo(ctx, "user-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		assert.WithinDuration(t, time.Now().Add(30*time.Minute), solo.ExpiresAt, 5*time.Second)
	})

	t.Run("hangout variant expires in 120 minutes", func(t *testing.T) {
		f := newServiceFixture()

		solo, err := f.svc.CreateSolo(ctx, "user-1", "Ada", model.SoloVariantHangout)
		require.NoError(t, err)

		assert.WithinDuration(t, time.Now().Add(120*time.Minute), solo.ExpiresAt, 5*time.Second)
	})

	t.Run("rejects unknown variant", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.CreateSolo(ctx, "user-1", "Ada", model.SoloVariant("forever"))
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.CreateSolo(ctx, "", "Ada", model.SoloVariantQuick)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMissingRequired))
	})
}

func TestSubmitCode(t *testing.T) {
	ctx := context.Background()

	t.Run("claims waiting session as pending", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		result, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		assert.Equal(t, model.SoloStatusPending, result.Status)
		require.NotNil(t, result.FinderID)
		assert.Equal(t, "finder-1", *result.FinderID)
		require.NotNil(t, result.FinderName)
		assert.Equal(t, "Grace", *result.FinderName)
	})

	t.Run("publishes snapshot to the feed", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		_, err = f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		snapshots := f.publisher.ofType(feed.TypeSnapshot)
		require.NotEmpty(t, snapshots)
		assert.Equal(t, solo.ID, snapshots[len(snapshots)-1].SessionID)
	})

	t.Run("accepts lowercase and padded input", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		result, err := f.svc.SubmitCode(ctx, "  "+strings.ToLower(solo.Code)+"  ", "finder-1", "Grace")
		require.NoError(t, err)
		assert.Equal(t, model.SoloStatusPending, result.Status)
	})

	t.Run("unknown code returns CODE_NOT_FOUND", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.SubmitCode(ctx, "ZZZZ9999", "finder-1", "Grace")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCodeNotFound))
	})

	t.Run("expired code returns CODE_EXPIRED and mutates nothing", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		f.sessions.expire(solo.ID)

		_, err = f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCodeExpired))

		doc, _ := f.sessions.FindByID(ctx, solo.ID)
		assert.Equal(t, string(model.SoloStatusWaiting), doc.Status)
		assert.Nil(t, doc.FinderID)
	})

	t.Run("owner cannot join own session", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		_, err = f.svc.SubmitCode(ctx, solo.Code, "owner-1", "Ada")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSelfJoinRejected))
	})

	t.Run("code no longer matches once pending", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		_, err = f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		_, err = f.svc.SubmitCode(ctx, solo.Code, "finder-2", "Linus")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCodeNotFound))
	})

	t.Run("malformed code rejected before lookup", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.SubmitCode(ctx, "short", "finder-1", "Grace")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	})
}

func TestAccept(t *testing.T) {
	ctx := context.Background()

	pendingSession := func(t *testing.T, f *serviceFixture) *model.SoloSession {
		t.Helper()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		pending, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)
		return pending
	}

	t.Run("activates session", func(t *testing.T) {
		f := newServiceFixture()
		pending := pendingSession(t, f)

		active, err := f.svc.Accept(ctx, pending.ID, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, model.SoloStatusActive, active.Status)
	})

	t.Run("records friendship both ways", func(t *testing.T) {
		f := newServiceFixture()
		pending := pendingSession(t, f)

		_, err := f.svc.Accept(ctx, pending.ID, "owner-1")
		require.NoError(t, err)

		ownerFriends, err := f.svc.Friends(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, ownerFriends, 1)
		assert.Equal(t, "finder-1", ownerFriends[0].CounterpartID)
		assert.Equal(t, "Grace", ownerFriends[0].DisplayName)

		finderFriends, err := f.svc.Friends(ctx, "finder-1")
		require.NoError(t, err)
		require.Len(t, finderFriends, 1)
		assert.Equal(t, "owner-1", finderFriends[0].CounterpartID)
		assert.Equal(t, "Ada", finderFriends[0].DisplayName)
	})

	t.Run("reconnecting refreshes the friendship instead of duplicating", func(t *testing.T) {
		f := newServiceFixture()

		for i := 0; i < 2; i++ {
			pending := pendingSession(t, f)
			_, err := f.svc.Accept(ctx, pending.ID, "owner-1")
			require.NoError(t, err)
		}

		ownerFriends, err := f.svc.Friends(ctx, "owner-1")
		require.NoError(t, err)
		assert.Len(t, ownerFriends, 1)
	})

	t.Run("only the owner may accept", func(t *testing.T) {
		f := newServiceFixture()
		pending := pendingSession(t, f)

		_, err := f.svc.Accept(ctx, pending.ID, "finder-1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotTheOwner))
	})

	t.Run("no pending request to accept", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		_, err = f.svc.Accept(ctx, solo.ID, "owner-1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))
	})
}

func TestDecline(t *testing.T) {
	ctx := context.Background()

	t.Run("is terminal and publishes ended", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		pending, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		err = f.svc.Decline(ctx, pending.ID, "owner-1")
		require.NoError(t, err)

		doc, _ := f.sessions.FindByID(ctx, pending.ID)
		assert.Equal(t, string(model.SoloStatusDeclined), doc.Status)

		ended := f.publisher.ofType(feed.TypeEnded)
		require.Len(t, ended, 1)
		assert.Contains(t, string(ended[0].Event.Data), "declined")

		// Declined is terminal: the code never matches again.
		_, err = f.svc.SubmitCode(ctx, solo.Code, "finder-2", "Linus")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCodeNotFound))
	})

	t.Run("only the owner may decline", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		pending, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		err = f.svc.Decline(ctx, pending.ID, "finder-1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotTheOwner))
	})

	t.Run("never writes a friendship", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		pending, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		require.NoError(t, f.svc.Decline(ctx, pending.ID, "owner-1"))

		friends, err := f.svc.Friends(ctx, "owner-1")
		require.NoError(t, err)
		assert.Empty(t, friends)
	})
}

func TestCancelRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("finder withdrawal re-opens the session", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		pending, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		err = f.svc.CancelRequest(ctx, pending.ID, "finder-1")
		require.NoError(t, err)

		doc, _ := f.sessions.FindByID(ctx, pending.ID)
		assert.Equal(t, string(model.SoloStatusWaiting), doc.Status)
		assert.Nil(t, doc.FinderID)

		// The code is live again for a different finder.
		result, err := f.svc.SubmitCode(ctx, solo.Code, "finder-2", "Linus")
		require.NoError(t, err)
		assert.Equal(t, model.SoloStatusPending, result.Status)
	})

	t.Run("only the pending finder may withdraw", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		pending, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		err = f.svc.CancelRequest(ctx, pending.ID, "someone-else")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels and ended is published", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		err = f.svc.Cancel(ctx, solo.ID, "owner-1")
		require.NoError(t, err)

		doc, _ := f.sessions.FindByID(ctx, solo.ID)
		assert.Equal(t, string(model.SoloStatusCancelled), doc.Status)

		ended := f.publisher.ofType(feed.TypeEnded)
		require.Len(t, ended, 1)
		assert.Contains(t, string(ended[0].Event.Data), "cancelled")
	})

	t.Run("non-owner has no cancel authority", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		pending, err := f.svc.SubmitCode(ctx, solo.Code, "finder-1", "Grace")
		require.NoError(t, err)

		err = f.svc.Cancel(ctx, pending.ID, "finder-1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotTheOwner))
	})

	t.Run("cancel is idempotent only in its rejection", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)

		require.NoError(t, f.svc.Cancel(ctx, solo.ID, "owner-1"))
		err = f.svc.Cancel(ctx, solo.ID, "owner-1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionTerminal))
	})
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("expired session reads as cancelled", func(t *testing.T) {
		f := newServiceFixture()
		solo, err := f.svc.CreateSolo(ctx, "owner-1", "Ada", model.SoloVariantQuick)
		require.NoError(t, err)
		f.sessions.expire(solo.ID)

		snap, err := f.svc.Snapshot(ctx, solo.ID)
		require.NoError(t, err)
		require.NotNil(t, snap.Solo)
		assert.Equal(t, model.SoloStatusCancelled, snap.Solo.Status)
		assert.False(t, snap.Live())
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.Snapshot(ctx, "no-such-session")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionNotFound))
	})
}
