package section

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoOrder(t *testing.T) {
	t.Run("built-in pipeline", func(t *testing.T) {
		order, err := TopoOrder(Definitions())
		require.NoError(t, err)

		pos := map[ID]int{}
		for i, id := range order {
			pos[id] = i
		}
		for _, d := range Definitions() {
			for _, dep := range d.DependsOn {
				assert.Less(t, pos[dep], pos[d.ID], "%s must follow %s", d.ID, dep)
			}
		}
		assert.Equal(t, IDs(), order)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := TopoOrder([]Definition{
			{ID: "a", DependsOn: []ID{"b"}},
			{ID: "b", DependsOn: []ID{"a"}},
		})
		assert.ErrorIs(t, err, ErrDependencyCycle)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := TopoOrder([]Definition{{ID: "a", DependsOn: []ID{"z"}}})
		assert.ErrorIs(t, err, ErrUnknownSection)
	})
}

func TestDependents(t *testing.T) {
	want := []ID{IDSessions, IDBilling, IDConclusion, IDTOC}
	if diff := cmp.Diff(want, Dependents(IDSurveillance)); diff != "" {
		t.Errorf("Dependents(3) mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []ID{IDTOC}, Dependents(IDDisclosure))
	assert.Empty(t, Dependents(IDTOC))
	assert.Len(t, Dependents(IDCaseInfo), 11)
}

func TestParseID(t *testing.T) {
	for in, want := range map[string]ID{"cp": IDCover, " toc ": IDTOC, "Dp": IDDisclosure, "7": IDConclusion} {
		got, err := ParseID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseID("10")
	assert.True(t, errors.Is(err, ErrUnknownSection))
}

func TestReportOrder(t *testing.T) {
	order := ReportOrder()
	assert.Equal(t, IDCover, order[0])
	assert.Equal(t, IDTOC, order[1])
	assert.Equal(t, IDDisclosure, order[len(order)-1])
	assert.ElementsMatch(t, IDs(), order)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Section 6", IDBilling.Label())
	assert.Equal(t, "Cover Page", IDCover.Label())
	assert.Equal(t, "Billing Summary", IDBilling.Title())
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusRendering, true},
		{StatusPending, StatusApproved, false},
		{StatusRendering, StatusCompleted, true},
		{StatusRendering, StatusFailed, true},
		{StatusCompleted, StatusApproved, true},
		{StatusCompleted, StatusRevisionRequested, true},
		{StatusCompleted, StatusPending, false},
		{StatusRevisionRequested, StatusRendering, true},
		{StatusFailed, StatusRendering, true},
		{StatusFailed, StatusRevisionRequested, true},
		{StatusFailed, StatusApproved, false},
		{StatusApproved, StatusPending, true},
		{StatusApproved, StatusRendering, false},
		{StatusApproved, StatusRevisionRequested, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, StatusFailed.Dispatchable())
	assert.False(t, StatusApproved.Dispatchable())
	assert.False(t, Status("done").IsValid())
}

func TestPayloadHashAndSummary(t *testing.T) {
	p := NewPayload(IDBilling)
	p.Version = 2
	p.Data["total_cents"] = 100
	p.Narrative = "| a | b |\n\nTotal amount due: **$1.00**.\n"
	require.NoError(t, p.Normalize())

	h := p.Hash()
	c := p.Clone()
	assert.Equal(t, h, c.Hash())

	c.Narrative = "changed"
	assert.NotEqual(t, h, c.Hash())

	s := p.Summarize()
	assert.Equal(t, "Total amount due: **$1.00**.", s.Headline)
	assert.Equal(t, 2, s.Version)
	assert.Equal(t, h, s.Hash)
	assert.Equal(t, float64(100), p.Data["total_cents"])
}
