// Package memory is an in-process backend used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

var (
	_ store.StageStore        = (*stageRepo)(nil)
	_ store.CardStore         = (*cardRepo)(nil)
	_ store.EventStore        = (*eventRepo)(nil)
	_ store.NotificationStore = (*notificationRepo)(nil)
	_ store.OutboxStore       = (*outboxRepo)(nil)
	_ store.AuditStore        = (*auditRepo)(nil)
	_ store.Transactor        = (*Store)(nil)
)

type data struct {
	stages        map[string]model.Stage
	cards         map[string]model.PipelineCard
	cardOrder     []string
	events        []model.PipelineEvent
	eventSeq      uint64
	notifications map[uuid.UUID]model.Notification
	notifyOrder   []uuid.UUID
	outbox        []model.OutboxEvent
	audit         []model.AuditEntry
}

func newData() *data {
	return &data{
		stages:        make(map[string]model.Stage),
		cards:         make(map[string]model.PipelineCard),
		notifications: make(map[uuid.UUID]model.Notification),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.stages {
		c.stages[k] = v
	}
	for k, v := range d.cards {
		c.cards[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	c.cardOrder = append([]string(nil), d.cardOrder...)
	c.events = append([]model.PipelineEvent(nil), d.events...)
	c.eventSeq = d.eventSeq
	c.notifyOrder = append([]uuid.UUID(nil), d.notifyOrder...)
	c.outbox = append([]model.OutboxEvent(nil), d.outbox...)
	c.audit = append([]model.AuditEntry(nil), d.audit...)
	return c
}

type Store struct {
	mu   sync.Mutex
	data *data
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{data: newData(), now: time.Now}
}

// Repositories returns the stores of this backend, audit included.
func (s *Store) Repositories() store.Repositories {
	return store.Repositories{
		Stages:        &stageRepo{s: s},
		Cards:         &cardRepo{s: s},
		Events:        &eventRepo{s: s},
		Notifications: &notificationRepo{s: s},
		Outbox:        &outboxRepo{s: s},
		Audit:         &auditRepo{s: s},
		Transactor:    s,
	}
}

// AuditEntries returns a copy of every audit entry written so far.
func (s *Store) AuditEntries() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditEntry(nil), s.data.audit...)
}

// InTx holds the store lock for the whole of fn and restores the previous
// state when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := store.Tx{
		Cards:         &cardRepo{s: s, inTx: true},
		Events:        &eventRepo{s: s, inTx: true},
		Notifications: &notificationRepo{s: s, inTx: true},
		Outbox:        &outboxRepo{s: s, inTx: true},
	}
	if err := fn(tx); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// lock acquires the store mutex unless the caller already holds it through InTx.
func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type stageRepo struct {
	s *Store
}

func (r *stageRepo) List(ctx context.Context) ([]model.Stage, error) {
	defer r.s.lock(false)()
	stages := make([]model.Stage, 0, len(r.s.data.stages))
	for _, stage := range r.s.data.stages {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
	return stages, nil
}

func (r *stageRepo) Get(ctx context.Context, id string) (*model.Stage, error) {
	defer r.s.lock(false)()
	stage, ok := r.s.data.stages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &stage, nil
}

func (r *stageRepo) Upsert(ctx context.Context, stages []model.Stage) error {
	defer r.s.lock(false)()
	now := r.s.now()
	for _, stage := range stages {
		if existing, ok := r.s.data.stages[stage.ID]; ok {
			stage.CreatedAt = existing.CreatedAt
		} else {
			stage.CreatedAt = now
		}
		stage.UpdatedAt = now
		r.s.data.stages[stage.ID] = stage
	}
	return nil
}

type cardRepo struct {
	s    *Store
	inTx bool
}

func (r *cardRepo) FindAll(ctx context.Context) ([]model.PipelineCard, error) {
	defer r.s.lock(r.inTx)()
	cards := make([]model.PipelineCard, 0, len(r.s.data.cardOrder))
	for _, id := range r.s.data.cardOrder {
		cards = append(cards, r.s.data.cards[id])
	}
	return cards, nil
}

func (r *cardRepo) FindBySilo(ctx context.Context, silo string) ([]model.PipelineCard, error) {
	defer r.s.lock(r.inTx)()
	cards := []model.PipelineCard{}
	for _, id := range r.s.data.cardOrder {
		if card := r.s.data.cards[id]; card.Silo == silo {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

func (r *cardRepo) FindByID(ctx context.Context, id string) (*model.PipelineCard, error) {
	defer r.s.lock(r.inTx)()
	card, ok := r.s.data.cards[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &card, nil
}

func (r *cardRepo) FindByApplicationID(ctx context.Context, applicationID string) (*model.PipelineCard, error) {
	defer r.s.lock(r.inTx)()
	for _, id := range r.s.data.cardOrder {
		if card := r.s.data.cards[id]; card.ApplicationID == applicationID {
			return &card, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *cardRepo) Create(ctx context.Context, card *model.PipelineCard) error {
	defer r.s.lock(r.inTx)()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.ApplicationID == "" {
		card.ApplicationID = card.ID
	}
	if card.Version == 0 {
		card.Version = 1
	}
	now := r.s.now()
	card.CreatedAt = now
	card.UpdatedAt = now
	if _, exists := r.s.data.cards[card.ID]; !exists {
		r.s.data.cardOrder = append(r.s.data.cardOrder, card.ID)
	}
	r.s.data.cards[card.ID] = *card
	return nil
}

func (r *cardRepo) UpdateStage(ctx context.Context, cardID, stageID string) (*model.PipelineCard, error) {
	defer r.s.lock(r.inTx)()
	card, ok := r.s.data.cards[cardID]
	if !ok {
		return nil, store.ErrNotFound
	}
	card.StageID = stageID
	card.Version++
	card.UpdatedAt = r.s.now()
	r.s.data.cards[cardID] = card
	return &card, nil
}

type eventRepo struct {
	s    *Store
	inTx bool
}

func (r *eventRepo) Append(ctx context.Context, event *model.PipelineEvent) (*model.PipelineEvent, error) {
	defer r.s.lock(r.inTx)()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.s.now()
	}
	r.s.data.eventSeq++
	event.Seq = r.s.data.eventSeq
	r.s.data.events = append(r.s.data.events, *event)
	stored := *event
	return &stored, nil
}

func (r *eventRepo) ListByApplication(ctx context.Context, applicationID string) ([]model.PipelineEvent, error) {
	defer r.s.lock(r.inTx)()
	return r.filter(applicationID), nil
}

func (r *eventRepo) EachByApplication(ctx context.Context, applicationID string, batchSize int, fn func(model.PipelineEvent) error) error {
	unlock := r.s.lock(r.inTx)
	events := r.filter(applicationID)
	unlock()

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	return nil
}

func (r *eventRepo) filter(applicationID string) []model.PipelineEvent {
	events := []model.PipelineEvent{}
	for _, event := range r.s.data.events {
		if event.ApplicationID == applicationID {
			events = append(events, event)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].Seq < events[j].Seq
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events
}

type notificationRepo struct {
	s    *Store
	inTx bool
}

func (r *notificationRepo) Create(ctx context.Context, notification *model.Notification) error {
	defer r.s.lock(r.inTx)()
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = r.s.now()
	}
	r.s.data.notifications[notification.ID] = *notification
	r.s.data.notifyOrder = append(r.s.data.notifyOrder, notification.ID)
	return nil
}

func (r *notificationRepo) ListUnread(ctx context.Context, userID, silo string) ([]model.Notification, error) {
	defer r.s.lock(r.inTx)()
	out := []model.Notification{}
	for _, id := range r.s.data.notifyOrder {
		n := r.s.data.notifications[id]
		if n.Read || !n.VisibleTo(userID, silo) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id uuid.UUID, userID, silo string, readAt time.Time) (*model.Notification, error) {
	defer r.s.lock(r.inTx)()
	n, ok := r.s.data.notifications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !n.VisibleTo(userID, silo) {
		return nil, store.ErrForbidden
	}
	if !n.Read {
		n.Read = true
		n.ReadAt = &readAt
		r.s.data.notifications[id] = n
	}
	return &n, nil
}

type outboxRepo struct {
	s    *Store
	inTx bool
}

func (r *outboxRepo) Enqueue(ctx context.Context, event *model.OutboxEvent) error {
	defer r.s.lock(r.inTx)()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	event.CreatedAt = r.s.now()
	r.s.data.outbox = append(r.s.data.outbox, *event)
	return nil
}

func (r *outboxRepo) ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	defer r.s.lock(r.inTx)()
	if limit <= 0 {
		limit = 100
	}
	events := []model.OutboxEvent{}
	for _, event := range r.s.data.outbox {
		if event.Status != model.OutboxStatusPending {
			continue
		}
		events = append(events, event)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (r *outboxRepo) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	return r.setStatus(eventID, model.OutboxStatusPublished, &publishedAt)
}

func (r *outboxRepo) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	return r.setStatus(eventID, model.OutboxStatusFailed, nil)
}

func (r *outboxRepo) setStatus(eventID uuid.UUID, status string, publishedAt *time.Time) error {
	defer r.s.lock(r.inTx)()
	for i := range r.s.data.outbox {
		if r.s.data.outbox[i].EventID == eventID {
			r.s.data.outbox[i].Status = status
			r.s.data.outbox[i].PublishedAt = publishedAt
			return nil
		}
	}
	return store.ErrNotFound
}

type auditRepo struct {
	s *Store
}

func (r *auditRepo) Log(ctx context.Context, entry *model.AuditEntry) (*model.AuditEntry, error) {
	defer r.s.lock(false)()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	if entry.ActorID == "" {
		entry.ActorID = model.AuditActorSystem
	}
	r.s.data.audit = append(r.s.data.audit, *entry)
	stored := *entry
	return &stored, nil
}

func (r *auditRepo) Close() error {
	return nil
}
