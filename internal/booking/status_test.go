package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/apperr"
)

func TestMachineNext(t *testing.T) {
	m := NewMachine()

	tests := []struct {
		action Action
		from   Status
		want   Status
		ok     bool
	}{
		{ActionReserve, StatusDraft, StatusReserved, true},
		{ActionReserve, StatusReserved, "", false},
		{ActionCheckOut, StatusReserved, StatusOngoing, true},
		{ActionCheckOut, StatusOverdue, StatusOngoing, true},
		{ActionCheckOut, StatusDraft, "", false},
		{ActionCheckIn, StatusOngoing, StatusComplete, true},
		{ActionCheckIn, StatusOverdue, StatusComplete, true},
		{ActionCheckIn, StatusReserved, "", false},
		{ActionPartialCheckIn, StatusOngoing, StatusOngoing, true},
		{ActionPartialCheckIn, StatusOverdue, StatusOverdue, true},
		{ActionPartialCheckIn, StatusReserved, "", false},
		{ActionCancel, StatusDraft, StatusCancelled, true},
		{ActionCancel, StatusOverdue, StatusCancelled, true},
		{ActionCancel, StatusComplete, "", false},
		{ActionArchive, StatusComplete, StatusArchived, true},
		{ActionArchive, StatusCancelled, "", false},
		{ActionRevertToDraft, StatusComplete, StatusDraft, true},
		{ActionRevertToDraft, StatusArchived, "", false},
		{ActionMarkOverdue, StatusOngoing, StatusOverdue, true},
		{ActionMarkOverdue, StatusOverdue, "", false},
		{ActionExtend, StatusOverdue, StatusOngoing, true},
		{ActionSave, StatusDraft, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"_"+string(tt.from), func(t *testing.T) {
			got, err := m.Next(tt.action, tt.from)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatesHaveNoTransitionsExceptArchiveAndRevert(t *testing.T) {
	m := NewMachine()
	assert.Empty(t, m.Allowed(StatusArchived))
	assert.Empty(t, m.Allowed(StatusCancelled))
	assert.ElementsMatch(t, []Action{ActionArchive, ActionRevertToDraft}, m.Allowed(StatusComplete))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusReserved.IsActive())
	assert.False(t, StatusDraft.IsActive())
	assert.True(t, StatusOverdue.IsCheckedOut())
	assert.False(t, StatusReserved.IsCheckedOut())
	assert.True(t, StatusArchived.IsTerminal())
}
