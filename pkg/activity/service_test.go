package activity

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/documents"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/pipeline"
	"github.com/staffportal/staffportal/pkg/store"
	"github.com/staffportal/staffportal/pkg/store/memory"
)

type push struct {
	kind          string
	silo          string
	applicationID string
	msg           string
}

type recordingEmitter struct {
	pushes []push
}

func (e *recordingEmitter) EmitPipelineUpdate(ctx context.Context, silo, applicationID string) {
	e.pushes = append(e.pushes, push{kind: "pipeline-update", silo: silo, applicationID: applicationID})
}

func (e *recordingEmitter) EmitDocumentUpdate(ctx context.Context, silo, applicationID string) {
	e.pushes = append(e.pushes, push{kind: "document", silo: silo, applicationID: applicationID})
}

func (e *recordingEmitter) EmitChatMessage(ctx context.Context, silo, applicationID, msg string) {
	e.pushes = append(e.pushes, push{kind: "message", silo: silo, applicationID: applicationID, msg: msg})
}

func newTestService(t *testing.T) (*Service, *memory.Store, *documents.MemoryStore, *recordingEmitter) {
	t.Helper()
	mem := memory.NewStore()
	repos := mem.Repositories()
	require.NoError(t, repos.Cards.Create(context.Background(), &model.PipelineCard{ID: "card-a1", ApplicationID: "a1", Silo: "BF", StageID: "new"}))

	blobs := documents.NewMemoryStore()
	emitter := &recordingEmitter{}
	return NewService(blobs, repos.Cards, repos.Audit, emitter, zap.NewNop()), mem, blobs, emitter
}

func TestUploadAndDeleteDocument(t *testing.T) {
	svc, mem, blobs, emitter := newTestService(t)
	ctx := context.Background()
	actor := pipeline.Actor{UserID: "u1", Silo: "BF"}

	doc, err := svc.UploadDocument(ctx, actor, "a1", "bank.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "BF/a1/bank.pdf", doc.Path)

	ok, err := blobs.Exists(ctx, doc.Path)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.DeleteDocument(ctx, actor, "a1", "bank.pdf"))
	assert.ErrorIs(t, svc.DeleteDocument(ctx, actor, "a1", "bank.pdf"), store.ErrNotFound)

	audit := mem.AuditEntries()
	require.Len(t, audit, 2)
	assert.Equal(t, model.AuditActionDocumentUpload, audit[0].Action)
	assert.Equal(t, model.AuditActionDocumentDelete, audit[1].Action)

	assert.Equal(t, []push{
		{kind: "document", silo: "BF", applicationID: "a1"},
		{kind: "document", silo: "BF", applicationID: "a1"},
	}, emitter.pushes)
}

func TestUploadDocumentRejectsBadInput(t *testing.T) {
	svc, _, _, emitter := newTestService(t)
	ctx := context.Background()
	actor := pipeline.Actor{UserID: "u1", Silo: "BF"}

	_, err := svc.UploadDocument(ctx, actor, "a1", "../x.pdf", "application/pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.UploadDocument(ctx, actor, "a1", "run.sh", "text/x-shellscript", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = svc.UploadDocument(ctx, pipeline.Actor{UserID: "u2", Silo: "SLF"}, "a1", "bank.pdf", "application/pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, pipeline.ErrForbidden)

	assert.Empty(t, emitter.pushes)
}

func TestPostMessage(t *testing.T) {
	svc, mem, _, emitter := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.PostMessage(ctx, pipeline.Actor{Silo: "BF"}, "a1", "  "), ErrEmptyMessage)

	require.NoError(t, svc.PostMessage(ctx, pipeline.Actor{UserID: "u1", Silo: "BF"}, "a1", "docs received"))
	assert.Equal(t, []push{{kind: "message", silo: "BF", applicationID: "a1", msg: "docs received"}}, emitter.pushes)

	audit := mem.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, model.AuditActionMessage, audit[0].Action)
	assert.EqualValues(t, len("docs received"), audit[0].Metadata["length"])
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectContentType("a.pdf", []byte("%PDF-1.4 ...")))
	assert.Equal(t, "image/png", DetectContentType("a.png", []byte("\x89PNG\r\n\x1a\n")))
}
