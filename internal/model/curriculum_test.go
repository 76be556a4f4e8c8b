package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurriculum_ClampAndAt(t *testing.T) {
	c := NewCurriculum([]CurriculumEntry{
		{Verb: "look up", Level: LevelA2},
		{Verb: "give in", Level: LevelB1},
	})

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 1, c.LastIndex())

	assert.Equal(t, 0, c.Clamp(-3))
	assert.Equal(t, 1, c.Clamp(1))
	assert.Equal(t, 1, c.Clamp(42))

	assert.Equal(t, CurriculumEntry{Verb: "look up", Level: LevelA2}, c.At(0))
	assert.Equal(t, CurriculumEntry{Verb: "give in", Level: LevelB1}, c.At(7))
}

func TestCurriculum_EntriesIsACopy(t *testing.T) {
	src := []CurriculumEntry{{Verb: "look up", Level: LevelA2}}
	c := NewCurriculum(src)
	src[0].Verb = "mutated"

	entries := c.Entries()
	entries[0].Verb = "also mutated"

	assert.Equal(t, "look up", c.At(0).Verb)
}

func TestCurriculum_EmptyPanics(t *testing.T) {
	assert.Panics(t, func() { NewCurriculum(nil) })
}

func TestPhrasalVerbs_DefaultList(t *testing.T) {
	require.NotEmpty(t, PhrasalVerbs)

	seen := make(map[string]bool)
	for _, e := range PhrasalVerbs {
		assert.NotEmpty(t, e.Verb)
		assert.Contains(t, []CEFRLevel{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}, e.Level)
		assert.False(t, seen[e.Verb], "duplicate verb %q", e.Verb)
		seen[e.Verb] = true
	}
}

func TestMessageRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, MessageRole("system").Valid())
	assert.False(t, MessageRole("").Valid())
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID(GenerateUUID()))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.False(t, IsValidUUID(""))
}
