package usecase

import (
	"context"
	"fmt"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
)

// SlotServiceArgs contains the mandatory arguments for the SlotService.
type SlotServiceArgs struct {
	// Repository is the repository for slot persistence.
	Repository ports.SlotRepository

	// Sender publishes slot events. Optional.
	Sender ports.Sender
}

// NewSlotService creates a new SlotService.
func NewSlotService(args SlotServiceArgs) *SlotService {
	events := newPublisher()
	events.sender = args.Sender
	return &SlotService{repository: args.Repository, events: events}
}

// SlotService gathers the functionality around the slot lifecycle.
type SlotService struct {
	repository ports.SlotRepository
	events     publisher
}

// CreateSlot creates a slot and derives its total duration. A zero duration is accepted, a
// negative one is not.
func (s *SlotService) CreateSlot(ctx context.Context, args model.CreateSlotArgs) (*model.Slot, error) {
	verr := new(model.ValidationError)
	if args.Date.IsZero() {
		verr.Add("date", "Date must be specified.")
	}
	if args.StartTime.IsZero() {
		verr.Add("start_time", "Start time must be specified.")
	}
	if args.EndTime.IsZero() {
		verr.Add("end_time", "End time must be specified.")
	}
	if args.Category == "" {
		verr.Add("category", "Category must be specified.")
	}
	if args.Charge < 0 {
		verr.Add("charge", "Charge must not be negative.")
	}
	if args.OwnerID == "" {
		verr.Add("user", "User must be specified.")
	}
	if !args.StartTime.IsZero() && !args.EndTime.IsZero() && args.EndTime.Before(args.StartTime) {
		verr.Add("end_time", "End time must not be before start time.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	slot := &model.Slot{
		Date:      args.Date,
		StartTime: args.StartTime,
		EndTime:   args.EndTime,
		Category:  args.Category,
		Charge:    args.Charge,
		UserID:    args.OwnerID,
	}
	slot.RecomputeDuration()

	if err := s.repository.SaveSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("error saving slot in repository: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventSlotCreated, Slot: slot})
	return slot, nil
}

// UpdateSlot applies the provided fields and recomputes the total duration when both endpoints
// are known. It returns model.ErrSlotNotFound if the slot does not exist and model.ErrNotOwner if
// the actor does not own it.
func (s *SlotService) UpdateSlot(ctx context.Context, args model.UpdateSlotArgs) (*model.Slot, error) {
	slot, err := s.repository.FindSlot(ctx, args.ID)
	if err != nil {
		return nil, fmt.Errorf("error finding slot: %w", err)
	}
	if args.ActorID != "" && slot.UserID != args.ActorID {
		return nil, model.ErrNotOwner
	}

	verr := new(model.ValidationError)
	if args.Date != nil && !args.Date.IsZero() {
		slot.Date = *args.Date
	}
	if args.StartTime != nil && !args.StartTime.IsZero() {
		slot.StartTime = *args.StartTime
	}
	if args.EndTime != nil && !args.EndTime.IsZero() {
		slot.EndTime = *args.EndTime
	}
	if args.Category != nil && *args.Category != "" {
		slot.Category = *args.Category
	}
	if args.Charge != nil {
		if *args.Charge < 0 {
			verr.Add("charge", "Charge must not be negative.")
		}
		slot.Charge = *args.Charge
	}
	if !slot.StartTime.IsZero() && !slot.EndTime.IsZero() && slot.EndTime.Before(slot.StartTime) {
		verr.Add("end_time", "End time must not be before start time.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	slot.RecomputeDuration()

	if err := s.repository.UpdateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("error updating slot: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventSlotUpdated, Slot: slot})
	return slot, nil
}
