// Package journey tracks multi-step home-improvement projects attached to a
// conversation. A conversation has at most one active journey, and a journey
// has at most one in_progress step; both invariants are enforced by the
// store's guarded transactions.
package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/renohq/reno/internal/storage"
)

// Store abstracts the journey tables for the manager.
type Store interface {
	CreateJourney(ctx context.Context, j storage.Journey, steps []storage.JourneyStep) error
	ActiveJourney(ctx context.Context, conversationID string) (storage.Journey, error)
	CurrentStep(ctx context.Context, journeyID string) (storage.JourneyStep, error)
	JourneySteps(ctx context.Context, journeyID string) ([]storage.JourneyStep, error)
	AdvanceStep(ctx context.Context, journeyID string) (storage.JourneyStep, error)
	SetJourneyStatus(ctx context.Context, journeyID, status string) error
}

// Manager coordinates journey lifecycle and per-turn image attachment.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Start creates a journey from a template. The first step begins
// in_progress.
func (m *Manager) Start(ctx context.Context, conversationID, templateID string) (storage.Journey, []storage.JourneyStep, error) {
	tmpl, err := TemplateByID(templateID)
	if err != nil {
		return storage.Journey{}, nil, err
	}

	j := storage.Journey{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Template:       tmpl.ID,
	}
	steps := make([]storage.JourneyStep, len(tmpl.Steps))
	for i, title := range tmpl.Steps {
		steps[i] = storage.JourneyStep{ID: uuid.New().String(), JourneyID: j.ID, Position: i, Title: title}
	}

	if err := m.store.CreateJourney(ctx, j, steps); err != nil {
		return storage.Journey{}, nil, fmt.Errorf("creating journey: %w", err)
	}
	j.Status = "active"
	steps[0].Status = "in_progress"
	for i := 1; i < len(steps); i++ {
		steps[i].Status = "pending"
	}
	return j, steps, nil
}

// LinkTurnImages assigns the active journey's current step to the turn's
// image attachments, so the persister writes the link in the same
// transaction as the messages. When the conversation has no active journey,
// or the journey has no in_progress step, the attachments pass through
// unlinked; steps are never auto-created from the pipeline. Store failures
// here are logged and absorbed: the turn proceeds without the link.
func (m *Manager) LinkTurnImages(ctx context.Context, conversationID string, attachments []storage.Attachment) []storage.Attachment {
	hasImage := false
	for _, a := range attachments {
		if a.Kind == "image" {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return attachments
	}

	j, err := m.store.ActiveJourney(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return attachments
	}
	if err != nil {
		slog.Warn("journey lookup failed, skipping attachment link", "conversation_id", conversationID, "error", err)
		return attachments
	}

	step, err := m.store.CurrentStep(ctx, j.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// No step in progress: skip, don't auto-create.
		return attachments
	}
	if err != nil {
		slog.Warn("current step lookup failed, skipping attachment link", "journey_id", j.ID, "error", err)
		return attachments
	}

	linked := make([]storage.Attachment, len(attachments))
	copy(linked, attachments)
	for i := range linked {
		if linked[i].Kind == "image" {
			linked[i].JourneyStepID = step.ID
		}
	}
	return linked
}

// Advance completes the current step and promotes the next one. Returns the
// new current step; a zero step means the journey just completed.
func (m *Manager) Advance(ctx context.Context, conversationID string) (storage.JourneyStep, error) {
	j, err := m.store.ActiveJourney(ctx, conversationID)
	if err != nil {
		return storage.JourneyStep{}, err
	}
	return m.store.AdvanceStep(ctx, j.ID)
}

// Abandon marks the conversation's active journey abandoned.
func (m *Manager) Abandon(ctx context.Context, conversationID string) error {
	j, err := m.store.ActiveJourney(ctx, conversationID)
	if err != nil {
		return err
	}
	return m.store.SetJourneyStatus(ctx, j.ID, "abandoned")
}

// Snapshot returns the active journey and its steps, or storage.ErrNotFound.
func (m *Manager) Snapshot(ctx context.Context, conversationID string) (storage.Journey, []storage.JourneyStep, error) {
	j, err := m.store.ActiveJourney(ctx, conversationID)
	if err != nil {
		return storage.Journey{}, nil, err
	}
	steps, err := m.store.JourneySteps(ctx, j.ID)
	if err != nil {
		return storage.Journey{}, nil, err
	}
	return j, steps, nil
}
