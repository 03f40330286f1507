// Package activity records document and chat activity on an application and
// pushes it to watching clients.
package activity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/documents"
	"github.com/staffportal/staffportal/pkg/livehub"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/pipeline"
	"github.com/staffportal/staffportal/pkg/store"
)

var (
	ErrInvalidName     = errors.New("invalid document name")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrEmptyMessage    = errors.New("message is empty")
)

var allowedContentTypes = map[string]bool{
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"image/jpeg": true,
	"image/png":  true,
}

type Service struct {
	blobs   documents.BlobStore
	cards   store.CardStore
	audit   store.AuditStore
	emitter livehub.Emitter
	logger  *zap.Logger
}

func NewService(blobs documents.BlobStore, cards store.CardStore, audit store.AuditStore, emitter livehub.Emitter, logger *zap.Logger) *Service {
	return &Service{
		blobs:   blobs,
		cards:   cards,
		audit:   audit,
		emitter: emitter,
		logger:  logger.Named("activity"),
	}
}

type Document struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// UploadDocument stores r under the application's folder, audits the upload
// and emits a document update.
func (s *Service) UploadDocument(ctx context.Context, actor pipeline.Actor, applicationID, name, contentType string, r io.Reader) (*Document, error) {
	card, err := s.resolve(ctx, applicationID, actor)
	if err != nil {
		return nil, err
	}
	key, err := objectPath(card, name)
	if err != nil {
		return nil, err
	}

	contentType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	if !allowedContentTypes[contentType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	size, err := s.blobs.Upload(ctx, key, r, contentType)
	if err != nil {
		return nil, err
	}

	doc := &Document{Path: key, ContentType: contentType, Size: size}
	if err := s.log(ctx, actor, card, model.AuditActionDocumentUpload, model.DocumentAuditMetadata{
		Path:        doc.Path,
		ContentType: doc.ContentType,
		Size:        doc.Size,
	}); err != nil {
		return nil, err
	}

	s.emitter.EmitDocumentUpdate(ctx, card.Silo, card.ApplicationID)
	return doc, nil
}

func (s *Service) DeleteDocument(ctx context.Context, actor pipeline.Actor, applicationID, name string) error {
	card, err := s.resolve(ctx, applicationID, actor)
	if err != nil {
		return err
	}
	key, err := objectPath(card, name)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, key); err != nil {
		if errors.Is(err, documents.ErrNotExist) {
			return store.ErrNotFound
		}
		return err
	}

	if err := s.log(ctx, actor, card, model.AuditActionDocumentDelete, model.DocumentAuditMetadata{Path: key}); err != nil {
		return err
	}

	s.emitter.EmitDocumentUpdate(ctx, card.Silo, card.ApplicationID)
	return nil
}

// PostMessage audits a staff chat message and pushes it to watchers.
func (s *Service) PostMessage(ctx context.Context, actor pipeline.Actor, applicationID, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ErrEmptyMessage
	}
	card, err := s.resolve(ctx, applicationID, actor)
	if err != nil {
		return err
	}

	if err := s.log(ctx, actor, card, model.AuditActionMessage, model.MessageAuditMetadata{Length: len(msg)}); err != nil {
		return err
	}

	s.emitter.EmitChatMessage(ctx, card.Silo, card.ApplicationID, msg)
	return nil
}

func (s *Service) resolve(ctx context.Context, applicationID string, actor pipeline.Actor) (*model.PipelineCard, error) {
	card, err := s.cards.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if actor.Silo != "" && card.Silo != actor.Silo {
		return nil, pipeline.ErrForbidden
	}
	return card, nil
}

func (s *Service) log(ctx context.Context, actor pipeline.Actor, card *model.PipelineCard, action string, metadata interface{}) error {
	payload, err := model.ToJSONB(metadata)
	if err != nil {
		return err
	}
	actorID := actor.UserID
	if actorID == "" {
		actorID = model.AuditActorSystem
	}
	if _, err := s.audit.Log(ctx, &model.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: model.AuditEntityApplication,
		EntityID:   card.ApplicationID,
		Silo:       card.Silo,
		Metadata:   payload,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Error("failed to write audit entry", zap.Error(err), zap.String("action", action))
		return err
	}
	return nil
}

// DetectContentType sniffs the first bytes of a document when the client did
// not send a usable type.
func DetectContentType(name string, head []byte) string {
	mimeType := http.DetectContentType(head)
	if mimeType == "application/zip" {
		switch {
		case strings.HasSuffix(name, ".docx"):
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case strings.HasSuffix(name, ".xlsx"):
			mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
	}
	return mimeType
}

func objectPath(card *model.PipelineCard, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	return path.Join(card.Silo, card.ApplicationID, name), nil
}
