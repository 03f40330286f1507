package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/notification"
	"github.com/staffportal/staffportal/pkg/store"
	"github.com/staffportal/staffportal/pkg/store/memory"
)

type emitted struct {
	silo          string
	applicationID string
	stageAtEmit   string
}

// recordingEmitter captures pipeline updates along with the stage a client
// re-fetching at that moment would see.
type recordingEmitter struct {
	cards   store.CardStore
	updates []emitted
}

func (e *recordingEmitter) EmitPipelineUpdate(ctx context.Context, silo, applicationID string) {
	stage := ""
	if card, err := e.cards.FindByApplicationID(ctx, applicationID); err == nil {
		stage = card.StageID
	}
	e.updates = append(e.updates, emitted{silo: silo, applicationID: applicationID, stageAtEmit: stage})
}

func (e *recordingEmitter) EmitDocumentUpdate(ctx context.Context, silo, applicationID string) {}

func (e *recordingEmitter) EmitChatMessage(ctx context.Context, silo, applicationID, msg string) {}

type failingAudit struct{}

func (failingAudit) Log(ctx context.Context, entry *model.AuditEntry) (*model.AuditEntry, error) {
	return nil, errors.New("audit unavailable")
}

func (failingAudit) Close() error { return nil }

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, applicationID string) (func(), error) {
	return nil, ErrMoveInProgress
}

type fixture struct {
	mem     *memory.Store
	repos   store.Repositories
	emitter *recordingEmitter
	svc     *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mem := memory.NewStore()
	repos := mem.Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Stages.Upsert(ctx, []model.Stage{
		{ID: "New", Name: "New", Order: 1},
		{ID: "Reviewing", Name: "Reviewing", Order: 2},
		{ID: "Funded", Name: "Funded", Order: 3},
	}))
	require.NoError(t, repos.Cards.Create(ctx, &model.PipelineCard{ID: "card-a1", ApplicationID: "a1", Silo: "BF", StageID: "New"}))
	require.NoError(t, repos.Cards.Create(ctx, &model.PipelineCard{ID: "card-a2", ApplicationID: "a2", Silo: "BF", StageID: "Funded"}))
	require.NoError(t, repos.Cards.Create(ctx, &model.PipelineCard{ID: "card-b1", ApplicationID: "b1", Silo: "SLF", StageID: "New"}))

	emitter := &recordingEmitter{cards: repos.Cards}
	svc := NewService(repos, notification.NewService(repos.Notifications, zap.NewNop()), emitter, opts, zap.NewNop())
	return &fixture{mem: mem, repos: repos, emitter: emitter, svc: svc}
}

func (f *fixture) notifications(t *testing.T) []model.Notification {
	t.Helper()
	list, err := f.repos.Notifications.ListUnread(context.Background(), "anyone", "BF")
	require.NoError(t, err)
	return list
}

func cardIDs(cards []model.PipelineCard) []string {
	ids := []string{}
	for _, card := range cards {
		ids = append(ids, card.ApplicationID)
	}
	return ids
}

func TestGetBoardGroupsCardsByStage(t *testing.T) {
	f := newFixture(t, Options{})

	board, err := f.svc.GetBoard(context.Background(), "BF")
	require.NoError(t, err)
	require.Len(t, board, 3)

	assert.Equal(t, "New", board[0].StageID)
	assert.Equal(t, []string{"a1"}, cardIDs(board[0].Cards))
	assert.Equal(t, "Reviewing", board[1].StageID)
	assert.Empty(t, board[1].Cards)
	assert.NotNil(t, board[1].Cards)
	assert.Equal(t, "Funded", board[2].StageID)
	assert.Equal(t, []string{"a2"}, cardIDs(board[2].Cards))
}

func TestGetBoardCoversEveryCardOnce(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	board, err := f.svc.GetBoard(ctx, "")
	require.NoError(t, err)

	seen := map[string]int{}
	for _, column := range board {
		for _, card := range column.Cards {
			seen[card.ID]++
		}
	}
	all, err := f.repos.Cards.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, seen, len(all))
	for _, card := range all {
		assert.Equal(t, 1, seen[card.ID], card.ID)
	}
}

func TestGetBoardSkipsUnknownStage(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.repos.Cards.Create(ctx, &model.PipelineCard{ID: "card-x", ApplicationID: "x", Silo: "BF", StageID: "Archived"}))

	board, err := f.svc.GetBoard(ctx, "BF")
	require.NoError(t, err)
	for _, column := range board {
		assert.NotContains(t, cardIDs(column.Cards), "x")
	}
}

func TestMoveCard(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	card, err := f.svc.MoveCard(ctx, MoveRequest{
		ApplicationID: "a1",
		FromStage:     "New",
		ToStage:       "Reviewing",
		Actor:         Actor{UserID: "u1", Silo: "BF"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Reviewing", card.StageID)
	assert.Equal(t, int64(2), card.Version)

	stored, err := f.repos.Cards.FindByID(ctx, "card-a1")
	require.NoError(t, err)
	assert.Equal(t, "Reviewing", stored.StageID)

	events, err := f.repos.Events.ListByApplication(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.PipelineEventMove, events[0].Type)
	assert.Equal(t, "New", events[0].FromStage)
	assert.Equal(t, "Reviewing", events[0].ToStage)
	assert.Equal(t, "u1", events[0].ActorID)

	notifications := f.notifications(t)
	require.Len(t, notifications, 1)
	assert.Equal(t, model.AudienceApplicationWatchers, notifications[0].Audience)
	assert.Equal(t, model.NotificationApplicationUpdate, notifications[0].Type)
	assert.Contains(t, notifications[0].Message, "a1")
	assert.Contains(t, notifications[0].Message, "New")
	assert.Contains(t, notifications[0].Message, "Reviewing")

	audit := f.mem.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, model.AuditActionMove, audit[0].Action)
	assert.Equal(t, model.AuditEntityApplication, audit[0].EntityType)
	assert.Equal(t, "a1", audit[0].EntityID)
	assert.Equal(t, "New", audit[0].Metadata["fromStageId"])
	assert.Equal(t, "Reviewing", audit[0].Metadata["toStageId"])

	pending, err := f.repos.Outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.OutboxEventCardMoved, pending[0].EventType)

	require.Len(t, f.emitter.updates, 1)
	assert.Equal(t, emitted{silo: "BF", applicationID: "a1", stageAtEmit: "Reviewing"}, f.emitter.updates[0])
}

func TestMoveCardAppendsOneEventPerMove(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	moves := [][2]string{{"New", "Reviewing"}, {"Reviewing", "Funded"}, {"Funded", "New"}}
	for i, move := range moves {
		_, err := f.svc.MoveCard(ctx, MoveRequest{ApplicationID: "a1", FromStage: move[0], ToStage: move[1]})
		require.NoError(t, err)

		events, err := f.repos.Events.ListByApplication(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, events, i+1)
		for j := 1; j < len(events); j++ {
			assert.False(t, events[j].CreatedAt.Before(events[j-1].CreatedAt))
		}
	}
}

func TestMoveCardMissingFieldHasNoSideEffects(t *testing.T) {
	cases := []MoveRequest{
		{ApplicationID: "", FromStage: "New", ToStage: "Reviewing"},
		{ApplicationID: "a1", FromStage: " ", ToStage: "Reviewing"},
		{ApplicationID: "a1", FromStage: "New", ToStage: ""},
	}

	for _, req := range cases {
		f := newFixture(t, Options{})
		ctx := context.Background()

		_, err := f.svc.MoveCard(ctx, req)
		assert.ErrorIs(t, err, ErrMissingField)

		card, err := f.repos.Cards.FindByID(ctx, "card-a1")
		require.NoError(t, err)
		assert.Equal(t, "New", card.StageID)
		assert.Equal(t, int64(1), card.Version)

		events, err := f.repos.Events.ListByApplication(ctx, "a1")
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Empty(t, f.notifications(t))
		assert.Empty(t, f.mem.AuditEntries())
		assert.Empty(t, f.emitter.updates)
	}
}

func TestMoveCardUnknownApplication(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.MoveCard(ctx, MoveRequest{ApplicationID: "unknown-app", FromStage: "New", ToStage: "Reviewing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.notifications(t))
	assert.Empty(t, f.mem.AuditEntries())
	assert.Empty(t, f.emitter.updates)
}

func TestMoveCardInvalidStage(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.MoveCard(context.Background(), MoveRequest{ApplicationID: "a1", FromStage: "New", ToStage: "Archived"})
	assert.ErrorIs(t, err, ErrInvalidStage)
	assert.Empty(t, f.emitter.updates)
}

func TestMoveCardOtherSiloForbidden(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.MoveCard(ctx, MoveRequest{
		ApplicationID: "b1",
		FromStage:     "New",
		ToStage:       "Reviewing",
		Actor:         Actor{UserID: "u1", Silo: "BF"},
	})
	assert.ErrorIs(t, err, ErrForbidden)

	card, err := f.repos.Cards.FindByID(ctx, "card-b1")
	require.NoError(t, err)
	assert.Equal(t, "New", card.StageID)
}

func TestMoveCardAcceptsStaleFromStageByDefault(t *testing.T) {
	f := newFixture(t, Options{})

	card, err := f.svc.MoveCard(context.Background(), MoveRequest{ApplicationID: "a1", FromStage: "Funded", ToStage: "Reviewing"})
	require.NoError(t, err)
	assert.Equal(t, "Reviewing", card.StageID)
}

func TestMoveCardStrictFromStage(t *testing.T) {
	f := newFixture(t, Options{StrictFromStage: true})
	ctx := context.Background()

	_, err := f.svc.MoveCard(ctx, MoveRequest{ApplicationID: "a1", FromStage: "Funded", ToStage: "Reviewing"})
	assert.ErrorIs(t, err, ErrStageConflict)

	_, err = f.svc.MoveCard(ctx, MoveRequest{ApplicationID: "a1", FromStage: "New", ToStage: "Reviewing"})
	assert.NoError(t, err)
}

func TestMoveCardLockBusy(t *testing.T) {
	f := newFixture(t, Options{Locker: busyLocker{}})

	_, err := f.svc.MoveCard(context.Background(), MoveRequest{ApplicationID: "a1", FromStage: "New", ToStage: "Reviewing"})
	assert.ErrorIs(t, err, ErrMoveInProgress)
	assert.Empty(t, f.emitter.updates)
}

func TestMoveCardAuditFailureSkipsPush(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.audit = failingAudit{}
	ctx := context.Background()

	_, err := f.svc.MoveCard(ctx, MoveRequest{ApplicationID: "a1", FromStage: "New", ToStage: "Reviewing"})
	require.Error(t, err)
	assert.Empty(t, f.emitter.updates)

	// The transaction already committed.
	card, err := f.repos.Cards.FindByID(ctx, "card-a1")
	require.NoError(t, err)
	assert.Equal(t, "Reviewing", card.StageID)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.MoveCard(ctx, MoveRequest{ApplicationID: "a1", FromStage: "New", ToStage: "Reviewing"})
	require.NoError(t, err)

	events, err := f.svc.ListEvents(ctx, "a1", Actor{Silo: "BF"})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = f.svc.ListEvents(ctx, "a1", Actor{Silo: "SLF"})
	assert.ErrorIs(t, err, ErrForbidden)
}
