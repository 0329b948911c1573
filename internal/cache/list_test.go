package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct {
	id    int64
	value string
}

func TestList_Operations(t *testing.T) {
	l := NewList(func(i item) int64 { return i.id })

	assert.True(t, l.Append(item{1, "a"}))
	assert.True(t, l.Append(item{2, "b"}))
	assert.False(t, l.Append(item{1, "dup"}))
	assert.Equal(t, 2, l.Len())

	assert.True(t, l.Update(2, func(i *item) { i.value = "B" }))
	assert.False(t, l.Update(3, func(i *item) { i.value = "x" }))
	got, ok := l.Get(2)
	assert.True(t, ok)
	assert.Equal(t, "B", got.value)

	snapshot := l.Items()
	assert.True(t, l.Remove(1))
	assert.False(t, l.Remove(1))
	assert.Equal(t, []item{{2, "B"}}, l.Items())
	assert.Len(t, snapshot, 2, "earlier reads are unaffected")

	l.MarkStale()
	assert.True(t, l.Stale())
	l.Replace([]item{{7, "z"}})
	assert.False(t, l.Stale())
	assert.True(t, l.Contains(7))
	assert.False(t, l.Contains(2))
}

func TestSession(t *testing.T) {
	s := NewSession("alice")
	assert.False(t, s.IsModerator())
	assert.Equal(t, "alice", s.SetIdentity("admin"))
	assert.True(t, s.IsModerator())
}
