// Package indexer implements the writer-of-record role. Every producer
// (mail sync, calendar sync, transcript fetch, conversation turns, the
// rule-based classifiers) hands its loosely-typed payload to the Indexer,
// which normalizes it into the canonical entity shape, stores it through
// the data layer, and creates the type's implicit relationships.
package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/attachehq/attache/internal/datalayer"
	"github.com/attachehq/attache/pkg/types"
)

// Indexer is the only legitimate writer. It is stateless and safe for
// concurrent use.
type Indexer struct {
	data   *datalayer.Service
	logger *zap.Logger
}

// New constructs the indexer role over the data layer service.
func New(data *datalayer.Service, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{data: data, logger: logger}
}

// Payload is the loosely-typed producer input, one mapping per record.
type Payload map[string]interface{}

func (p Payload) str(key string) string {
	s, _ := p[key].(string)
	return s
}

// IndexEmail ingests an email message payload. Required: message_id.
// The sender contact is resolved (created as a stub when unknown) and a
// received_from edge is drawn from the email to it.
func (i *Indexer) IndexEmail(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexEmail", &err)

	if err := requireFields(payload, "message_id"); err != nil {
		return "", err
	}

	structured, analyzed := splitPayload(payload, emailAnalyzedKeys)
	e := &types.Entity{
		EntityType: types.EntityTypeEmail,
		Source:     payload.str("source"),
		Structured: structured,
		Analyzed:   analyzed,
	}
	if e.Source == "" {
		e.Source = "email"
	}

	id, err = i.data.StoreEntity(ctx, e)
	if err != nil {
		return "", err
	}

	if senderEmail := payload.str("sender_email"); senderEmail != "" {
		contactID, cerr := i.ensureContact(ctx, payload.str("sender"), senderEmail)
		if cerr != nil {
			i.logger.Warn("sender contact resolution failed",
				zap.String("email_id", id),
				zap.Error(cerr))
		} else if _, cerr := i.data.CreateRelationship(ctx, id, contactID, types.RelReceivedFrom, nil); cerr != nil {
			i.logger.Warn("received_from relationship failed",
				zap.String("email_id", id),
				zap.Error(cerr))
		}
	}
	return id, nil
}

// IndexContact ingests a contact payload. Required: email.
func (i *Indexer) IndexContact(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexContact", &err)

	if err := requireFields(payload, "email"); err != nil {
		return "", err
	}

	structured, analyzed := splitPayload(payload, contactAnalyzedKeys)
	e := &types.Entity{
		EntityType: types.EntityTypeContact,
		Source:     payload.str("source"),
		Structured: structured,
		Analyzed:   analyzed,
	}
	if e.Source == "" {
		e.Source = "contact"
	}
	return i.data.StoreEntity(ctx, e)
}

// IndexFollowUp ingests a follow-up produced by the email classifiers.
// Required: email_id. A follow_up_for edge links it to the email.
func (i *Indexer) IndexFollowUp(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexFollowUp", &err)

	if err := requireFields(payload, "email_id"); err != nil {
		return "", err
	}

	structured, analyzed := splitPayload(payload, followUpAnalyzedKeys)
	e := &types.Entity{
		EntityType: types.EntityTypeFollowUp,
		Source:     "classifier",
		Structured: structured,
		Analyzed:   analyzed,
	}

	id, err = i.data.StoreEntity(ctx, e)
	if err != nil {
		return "", err
	}

	if emailID := payload.str("email_id"); emailID != "" {
		if _, cerr := i.data.CreateRelationship(ctx, id, emailID, types.RelFollowUpFor, nil); cerr != nil {
			i.logger.Warn("follow_up_for relationship failed",
				zap.String("follow_up_id", id),
				zap.Error(cerr))
		}
	}
	return id, nil
}

// IndexMeeting ingests a meeting payload. Required: event_id or title.
// Each participant with an email address is resolved to a contact and
// linked with a has_participant edge.
func (i *Indexer) IndexMeeting(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexMeeting", &err)

	if payload.str("event_id") == "" && payload.str("title") == "" {
		return "", &ValidationError{Missing: []string{"event_id", "title"}}
	}

	structured, analyzed := splitPayload(payload, meetingAnalyzedKeys)
	e := &types.Entity{
		EntityType: types.EntityTypeMeeting,
		Source:     payload.str("source"),
		Structured: structured,
		Analyzed:   analyzed,
	}
	if e.Source == "" {
		e.Source = "calendar"
	}

	id, err = i.data.StoreEntity(ctx, e)
	if err != nil {
		return "", err
	}

	i.linkParticipants(ctx, id, participantList(payload, "participants"), types.RelHasParticipant)
	return id, nil
}

// IndexEvent ingests a calendar event as a generic entity. Required: title.
// Attendees with email addresses are linked with has_attendee edges.
func (i *Indexer) IndexEvent(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexEvent", &err)

	if err := requireFields(payload, "title"); err != nil {
		return "", err
	}

	id, err = i.indexGeneric(ctx, types.EntityTypeEvent, "calendar", payload)
	if err != nil {
		return "", err
	}

	i.linkParticipants(ctx, id, participantList(payload, "attendees"), types.RelHasAttendee)
	return id, nil
}

// IndexMemory ingests a conversation memory as a generic entity.
// Required: content.
func (i *Indexer) IndexMemory(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexMemory", &err)

	if err := requireFields(payload, "content"); err != nil {
		return "", err
	}
	return i.indexGeneric(ctx, types.EntityTypeMemory, "conversation", payload)
}

// IndexFact ingests a fact as a generic entity. Required: content.
func (i *Indexer) IndexFact(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexFact", &err)

	if err := requireFields(payload, "content"); err != nil {
		return "", err
	}

	structured, analyzed := splitPayload(payload, genericAnalyzedKeys)
	e := &types.Entity{
		EntityType: types.EntityTypeFact,
		Source:     "conversation",
		Structured: structured,
		Analyzed:   analyzed,
	}
	e.SetMetadata(types.MetaIsCurrent, true)
	return i.data.StoreEntity(ctx, e)
}

// IndexDocument ingests a document payload. Required: title or content.
func (i *Indexer) IndexDocument(ctx context.Context, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexDocument", &err)

	if payload.str("title") == "" && payload.str("content") == "" {
		return "", &ValidationError{Missing: []string{"title", "content"}}
	}
	return i.indexGeneric(ctx, types.EntityTypeDocument, "document", payload)
}

// IndexGeneric ingests a payload under an arbitrary entity type tag, for
// types without a dedicated normalization routine.
func (i *Indexer) IndexGeneric(ctx context.Context, entityType string, payload Payload) (id string, err error) {
	defer i.recoverBoundary("IndexGeneric", &err)

	if entityType == "" {
		return "", &ValidationError{Missing: []string{"entity_type"}}
	}
	return i.indexGeneric(ctx, entityType, payload.str("source"), payload)
}

// CreateRelationship draws an explicit edge between two stored entities.
func (i *Indexer) CreateRelationship(ctx context.Context, fromID, toID, relType string, metadata map[string]interface{}) (bool, error) {
	return i.data.CreateRelationship(ctx, fromID, toID, relType, metadata)
}

// SupersedeFact marks newFactID as the current version of oldFactID.
// Both facts are retained for audit: the old one keeps its row with
// is_current=false, and a supersedes edge runs new -> old.
func (i *Indexer) SupersedeFact(ctx context.Context, oldFactID, newFactID, reason string) error {
	now := nowRFC3339()

	ok, err := i.data.UpdateEntity(ctx, oldFactID, datalayer.EntityUpdate{
		Metadata: map[string]interface{}{
			types.MetaSupersededBy: newFactID,
			types.MetaSupersededAt: now,
			types.MetaIsCurrent:    false,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark %s superseded: %w", oldFactID, err)
	}
	if !ok {
		return fmt.Errorf("superseded fact %s not found", oldFactID)
	}

	ok, err = i.data.UpdateEntity(ctx, newFactID, datalayer.EntityUpdate{
		Metadata: map[string]interface{}{
			types.MetaSupersedes: oldFactID,
			types.MetaIsCurrent:  true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark %s current: %w", newFactID, err)
	}
	if !ok {
		return fmt.Errorf("superseding fact %s not found", newFactID)
	}

	_, err = i.data.CreateRelationship(ctx, newFactID, oldFactID, types.RelSupersedes,
		map[string]interface{}{"reason": reason, "superseded_at": now})
	if err != nil {
		return fmt.Errorf("supersedes relationship failed: %w", err)
	}
	return nil
}

// Reindex refreshes the similarity-index point for one entity from its
// current stored state. Returns false when the entity does not exist.
func (i *Indexer) Reindex(ctx context.Context, id string) (bool, error) {
	return i.data.ReindexEntity(ctx, id)
}

// ReindexAll refreshes every stored entity of the given type, up to limit
// rows. It logs and continues past per-entity failures so one bad embedding
// call cannot abort the repair run. Returns the number of refreshed points.
func (i *Indexer) ReindexAll(ctx context.Context, entityType string, limit int) (int, error) {
	entities, err := i.data.StructuredQuery(ctx, entityType, nil, limit)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, e := range entities {
		ok, err := i.data.ReindexEntity(ctx, e.ID)
		if err != nil {
			i.logger.Warn("reindex failed",
				zap.String("entity_id", e.ID),
				zap.Error(err))
			continue
		}
		if ok {
			refreshed++
		}
	}
	return refreshed, nil
}

// DeleteEntity removes an entity, its index point, and its edges.
func (i *Indexer) DeleteEntity(ctx context.Context, id string) (bool, error) {
	return i.data.DeleteEntity(ctx, id)
}

// indexGeneric normalizes a payload into a generic entity and stores it.
func (i *Indexer) indexGeneric(ctx context.Context, entityType, source string, payload Payload) (string, error) {
	structured, analyzed := splitPayload(payload, genericAnalyzedKeys)
	e := &types.Entity{
		EntityType: entityType,
		Source:     source,
		Structured: structured,
		Analyzed:   analyzed,
	}
	return i.data.StoreEntity(ctx, e)
}

// ensureContact resolves an email address to a contact entity, creating a
// stub contact when none exists yet.
func (i *Indexer) ensureContact(ctx context.Context, name, email string) (string, error) {
	contactID := types.NewEntityID(types.EntityTypeContact, email)
	if _, err := i.data.GetEntity(ctx, contactID); err == nil {
		return contactID, nil
	}

	structured := map[string]interface{}{"email": email}
	if name != "" {
		structured["name"] = name
	}
	return i.data.StoreEntity(ctx, &types.Entity{
		EntityType: types.EntityTypeContact,
		Source:     "implicit",
		Structured: structured,
	})
}

// linkParticipants draws relType edges from ownerID to the contact resolved
// for each participant that looks like an email address. Failures are
// logged and skipped so one bad participant cannot fail the ingestion.
func (i *Indexer) linkParticipants(ctx context.Context, ownerID string, participants []string, relType string) {
	for _, p := range participants {
		name, email := parseParticipant(p)
		if email == "" {
			continue
		}
		contactID, err := i.ensureContact(ctx, name, email)
		if err != nil {
			i.logger.Warn("participant contact resolution failed",
				zap.String("owner_id", ownerID),
				zap.String("participant", p),
				zap.Error(err))
			continue
		}
		if _, err := i.data.CreateRelationship(ctx, ownerID, contactID, relType, nil); err != nil {
			i.logger.Warn("participant relationship failed",
				zap.String("owner_id", ownerID),
				zap.String("contact_id", contactID),
				zap.Error(err))
		}
	}
}

// recoverBoundary converts a panic during one call into a structured error
// so a single bad payload cannot take down the host process or affect
// concurrently in-flight calls.
func (i *Indexer) recoverBoundary(op string, err *error) {
	if r := recover(); r != nil {
		i.logger.Error("panic recovered at indexer boundary",
			zap.String("operation", op),
			zap.Any("panic", r))
		*err = fmt.Errorf("%s failed: internal error: %v", op, r)
	}
}
