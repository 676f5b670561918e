package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/rbroggi/slotcast/internal/actors/memory"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t0  = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

func TestSlotService_CreateSlot(t *testing.T) {
	tests := []struct {
		name    string
		args    model.CreateSlotArgs
		wantErr []string
		want    float64
	}{
		{
			name: "thirty minutes",
			args: model.CreateSlotArgs{Date: day, StartTime: t0, EndTime: t0.Add(30 * time.Minute), Category: "A", Charge: 10, OwnerID: "o"},
			want: 30,
		},
		{
			name: "zero duration",
			args: model.CreateSlotArgs{Date: day, StartTime: t0, EndTime: t0, Category: "A", OwnerID: "o"},
			want: 0,
		},
		{
			name: "sub-minute precision",
			args: model.CreateSlotArgs{Date: day, StartTime: t0, EndTime: t0.Add(90 * time.Second), Category: "A", OwnerID: "o"},
			want: 1.5,
		},
		{
			name:    "negative duration",
			args:    model.CreateSlotArgs{Date: day, StartTime: t0, EndTime: t0.Add(-time.Minute), Category: "A", OwnerID: "o"},
			wantErr: []string{"end_time"},
		},
		{
			name:    "every missing field is reported",
			args:    model.CreateSlotArgs{Charge: -1},
			wantErr: []string{"date", "start_time", "end_time", "category", "charge", "user"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			svc := NewSlotService(SlotServiceArgs{Repository: memory.NewStore()})
			slot, err := svc.CreateSlot(context.Background(), test.args)
			if test.wantErr != nil {
				var verr *model.ValidationError
				require.ErrorAs(t, err, &verr)
				fields := make([]string, 0, len(verr.Fields))
				for _, f := range verr.Fields {
					fields = append(fields, f.Field)
				}
				assert.Equal(t, test.wantErr, fields)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, slot.ID)
			assert.Equal(t, test.want, slot.TotalDuration)
			assert.Equal(t, test.args.OwnerID, slot.UserID)
		})
	}
}

func TestSlotService_UpdateSlot(t *testing.T) {
	ptr := func(v time.Time) *time.Time { return &v }
	category := "B"
	charge := 25.5
	negative := -3.0

	tests := []struct {
		name           string
		update         func(id string) model.UpdateSlotArgs
		wantErr        error
		wantValidation bool
		want           func(t *testing.T, slot *model.Slot)
	}{
		{
			name:   "moving the end recomputes the duration",
			update: func(id string) model.UpdateSlotArgs { return model.UpdateSlotArgs{ID: id, EndTime: ptr(t0.Add(45 * time.Minute))} },
			want: func(t *testing.T, slot *model.Slot) {
				assert.Equal(t, float64(45), slot.TotalDuration)
			},
		},
		{
			name:   "moving the start uses the existing end",
			update: func(id string) model.UpdateSlotArgs { return model.UpdateSlotArgs{ID: id, StartTime: ptr(t0.Add(10 * time.Minute))} },
			want: func(t *testing.T, slot *model.Slot) {
				assert.Equal(t, float64(20), slot.TotalDuration)
				assert.Equal(t, t0.Add(30*time.Minute), slot.EndTime)
			},
		},
		{
			name:   "category and charge only",
			update: func(id string) model.UpdateSlotArgs { return model.UpdateSlotArgs{ID: id, Category: &category, Charge: &charge} },
			want: func(t *testing.T, slot *model.Slot) {
				assert.Equal(t, "B", slot.Category)
				assert.Equal(t, 25.5, slot.Charge)
				assert.Equal(t, float64(30), slot.TotalDuration)
			},
		},
		{
			name:    "unknown slot",
			update:  func(string) model.UpdateSlotArgs { return model.UpdateSlotArgs{ID: "missing"} },
			wantErr: model.ErrSlotNotFound,
		},
		{
			name:    "other identity",
			update:  func(id string) model.UpdateSlotArgs { return model.UpdateSlotArgs{ID: id, ActorID: "intruder"} },
			wantErr: model.ErrNotOwner,
		},
		{
			name:           "negative charge",
			update:         func(id string) model.UpdateSlotArgs { return model.UpdateSlotArgs{ID: id, Charge: &negative} },
			wantValidation: true,
		},
		{
			name:           "end before start",
			update:         func(id string) model.UpdateSlotArgs { return model.UpdateSlotArgs{ID: id, EndTime: ptr(t0.Add(-time.Hour))} },
			wantValidation: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := memory.NewStore()
			svc := NewSlotService(SlotServiceArgs{Repository: store})
			created, err := svc.CreateSlot(context.Background(), model.CreateSlotArgs{
				Date: day, StartTime: t0, EndTime: t0.Add(30 * time.Minute), Category: "A", Charge: 10, OwnerID: "owner",
			})
			require.NoError(t, err)

			args := test.update(created.ID)
			if args.ActorID == "" {
				args.ActorID = "owner"
			}
			slot, err := svc.UpdateSlot(context.Background(), args)
			if test.wantErr != nil || test.wantValidation {
				if test.wantValidation {
					var verr *model.ValidationError
					assert.ErrorAs(t, err, &verr)
				} else {
					assert.ErrorIs(t, err, test.wantErr)
				}
				stored, findErr := store.FindSlot(context.Background(), created.ID)
				require.NoError(t, findErr)
				assert.Equal(t, float64(30), stored.TotalDuration)
				return
			}
			require.NoError(t, err)
			test.want(t, slot)

			stored, err := store.FindSlot(context.Background(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, slot.TotalDuration, stored.TotalDuration)
		})
	}
}
