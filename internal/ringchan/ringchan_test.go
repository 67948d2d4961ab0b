package ringchan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roambot/blecore/internal/ringchan"
)

func TestRing_OverwritesOldestWhenFull(t *testing.T) {
	r := ringchan.New[int](3)

	for i := 1; i <= 5; i++ {
		r.Send(i)
	}
	r.Close()

	var got []int
	for v := range r.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestRing_SendReportsDrop(t *testing.T) {
	r := ringchan.New[string](1)

	assert.False(t, r.Send("a"))
	assert.True(t, r.Send("b"))
	assert.Equal(t, 1, r.Len())
}

func TestRing_TrySend(t *testing.T) {
	r := ringchan.New[int](1)

	assert.True(t, r.TrySend(1))
	assert.False(t, r.TrySend(2))

	v, ok := <-r.C()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRing_RejectsNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { ringchan.New[int](0) })
}
