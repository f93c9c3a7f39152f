package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	for _, raw := range []string{"favor_sender", "favor_receiver", "split"} {
		o, err := ParseOutcome(raw)
		require.NoError(t, err)
		assert.Equal(t, Outcome(raw), o)
	}
	_, err := ParseOutcome("cancelled")
	assert.Error(t, err)
	_, err = ParseOutcome("")
	assert.Error(t, err)
}

func TestOverdue(t *testing.T) {
	opened := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	d := &Dispute{Status: StatusOpen, OpenedAt: opened}
	grace := 7 * 24 * time.Hour

	assert.False(t, d.Overdue(opened.Add(grace-time.Second), grace))
	assert.True(t, d.Overdue(opened.Add(grace), grace))

	escalated := opened.Add(grace)
	d.EscalatedAt = &escalated
	assert.False(t, d.Overdue(opened.Add(2*grace), grace))

	d.EscalatedAt = nil
	d.Status = StatusResolved
	assert.False(t, d.Overdue(opened.Add(2*grace), grace))
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	d := &Dispute{Evidence: []Evidence{{Ref: "a"}}, ReviewedAt: &now, Resolution: &Resolution{Note: "x"}}
	c := d.Clone()
	c.Evidence[0].Ref = "b"
	c.Resolution.Note = "y"
	*c.ReviewedAt = now.Add(time.Hour)

	assert.Equal(t, "a", d.Evidence[0].Ref)
	assert.Equal(t, "x", d.Resolution.Note)
	assert.Equal(t, now, *d.ReviewedAt)
}
