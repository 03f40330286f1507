package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

func TestStagesListedInOrder(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Stages.Upsert(ctx, []model.Stage{
		{ID: "funded", Name: "Funded", Order: 3},
		{ID: "new", Name: "New", Order: 1},
		{ID: "reviewing", Name: "Reviewing", Order: 2},
	}))

	stages, err := repos.Stages.List(ctx)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, "new", stages[0].ID)
	assert.Equal(t, "reviewing", stages[1].ID)
	assert.Equal(t, "funded", stages[2].ID)

	_, err = repos.Stages.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateStageUnknownCard(t *testing.T) {
	repos := NewStore().Repositories()

	_, err := repos.Cards.UpdateStage(context.Background(), "nope", "new")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	repos := s.Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Cards.Create(ctx, &model.PipelineCard{ID: "a1", Silo: "BF", StageID: "new"}))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Cards.UpdateStage(ctx, "a1", "reviewing"); err != nil {
			return err
		}
		if _, err := tx.Events.Append(ctx, &model.PipelineEvent{ApplicationID: "a1", Type: model.PipelineEventMove}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	card, err := repos.Cards.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "new", card.StageID)

	events, err := repos.Events.ListByApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventsOldestFirst(t *testing.T) {
	s := NewStore()
	repos := s.Repositories()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := repos.Events.Append(ctx, &model.PipelineEvent{ApplicationID: "a1", FromStage: "reviewing", ToStage: "funded", CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)
	_, err = repos.Events.Append(ctx, &model.PipelineEvent{ApplicationID: "a1", FromStage: "new", ToStage: "reviewing", CreatedAt: base})
	require.NoError(t, err)
	_, err = repos.Events.Append(ctx, &model.PipelineEvent{ApplicationID: "a2", FromStage: "new", ToStage: "docs", CreatedAt: base})
	require.NoError(t, err)

	events, err := repos.Events.ListByApplication(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "new", events[0].FromStage)
	assert.Equal(t, "reviewing", events[1].FromStage)

	var streamed []string
	err = repos.Events.EachByApplication(ctx, "a1", 1, func(event model.PipelineEvent) error {
		streamed = append(streamed, event.ToStage)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"reviewing", "funded"}, streamed)
}

func TestNotificationAudienceAndMarkRead(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()

	alice := "alice"
	bob := "bob"
	forAlice := &model.Notification{Audience: model.AudienceUser, UserID: &alice, Silo: "BF", Type: "t", Message: "for alice"}
	forBob := &model.Notification{Audience: model.AudienceUser, UserID: &bob, Silo: "BF", Type: "t", Message: "for bob"}
	watchers := &model.Notification{Audience: model.AudienceApplicationWatchers, ApplicationID: "a1", Silo: "BF", Type: "t", Message: "watchers"}
	otherSilo := &model.Notification{Audience: model.AudienceTenant, Silo: "BI", Type: "t", Message: "other silo"}
	for _, n := range []*model.Notification{forAlice, forBob, watchers, otherSilo} {
		require.NoError(t, repos.Notifications.Create(ctx, n))
	}

	unread, err := repos.Notifications.ListUnread(ctx, "alice", "BF")
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "for alice", unread[0].Message)
	assert.Equal(t, "watchers", unread[1].Message)

	first, err := repos.Notifications.MarkRead(ctx, forAlice.ID, "alice", "BF", time.Now())
	require.NoError(t, err)
	assert.True(t, first.Read)

	second, err := repos.Notifications.MarkRead(ctx, forAlice.ID, "alice", "BF", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, second.Read)
	assert.Equal(t, first.ReadAt, second.ReadAt)

	_, err = repos.Notifications.MarkRead(ctx, uuid.New(), "alice", "BF", time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repos.Notifications.MarkRead(ctx, forBob.ID, "alice", "BF", time.Now())
	assert.ErrorIs(t, err, store.ErrForbidden)
	_, err = repos.Notifications.MarkRead(ctx, otherSilo.ID, "alice", "BF", time.Now())
	assert.ErrorIs(t, err, store.ErrForbidden)

	bobUnread, err := repos.Notifications.ListUnread(ctx, "bob", "BF")
	require.NoError(t, err)
	assert.Len(t, bobUnread, 2)
}

func TestOutboxLifecycle(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()

	event := &model.OutboxEvent{EventType: model.OutboxEventCardMoved, Payload: model.JSONB{"application_id": "a1"}}
	require.NoError(t, repos.Outbox.Enqueue(ctx, event))

	pending, err := repos.Outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repos.Outbox.MarkPublished(ctx, event.EventID, time.Now()))

	pending, err = repos.Outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
