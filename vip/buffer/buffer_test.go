package buffer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermavip/vip"
)

func times(samples []vip.Sample) []int64 {
	res := make([]int64, 0, len(samples))
	for _, s := range samples {
		res = append(res, s.Time)
	}
	return res
}

func sample(t int64, size int) vip.Sample {
	return vip.Sample{Time: t, Value: vip.Bytes(make([]byte, size))}
}

func TestFIFONumberBoundKeepsMostRecent(t *testing.T) {
	l := NewDataList(FIFO, Limits{Type: Number, MaxSize: 3})

	dropped := 0
	for i := int64(0); i < 10; i++ {
		dropped += l.Push(sample(i, 1))
	}
	assert.Equal(t, 7, dropped)
	assert.Equal(t, 3, l.Remaining())

	if diff := cmp.Diff([]int64{7, 8, 9}, times(l.AllNext())); diff != "" {
		t.Errorf("AllNext() mismatch (-want +got):\n%s", diff)
	}
}

func TestFIFOMemoryBound(t *testing.T) {
	l := NewDataList(FIFO, Limits{Type: MemorySize, MaxMemory: 25})
	for i := int64(0); i < 5; i++ {
		l.Push(sample(i, 10))
	}
	assert.Equal(t, 20, l.MemoryFootprint())
	assert.Equal(t, []int64{3, 4}, times(l.AllNext()))

	// a single sample larger than the bound is kept
	l.Push(sample(10, 100))
	assert.Equal(t, 1, l.Remaining())
}

func TestFIFONextRemembersLast(t *testing.T) {
	l := NewDataList(FIFO, DefaultLimits())
	assert.True(t, l.Empty())
	assert.Equal(t, vip.InvalidTime, l.Time())

	_, ok := l.Next()
	assert.False(t, ok)

	l.Push(sample(1, 1))
	l.Push(sample(2, 1))
	s, ok := l.Next()
	require.True(t, ok)
	assert.Equal(t, int64(1), s.Time)
	s, _ = l.Next()
	assert.Equal(t, int64(2), s.Time)

	// nothing pending: last consumed sample again
	s, ok = l.Next()
	assert.True(t, ok)
	assert.Equal(t, int64(2), s.Time)
	assert.False(t, l.HasNewData())
	assert.False(t, l.Empty())
	assert.Equal(t, []int64{2}, times(l.AllNext()))
}

func TestLIFO(t *testing.T) {
	l := NewDataList(LIFO, Limits{Type: Number, MaxSize: 2})
	for i := int64(0); i < 4; i++ {
		l.Push(sample(i, 1))
	}
	p, _ := l.Probe()
	assert.Equal(t, int64(3), p.Time)
	assert.Equal(t, []int64{3, 2}, times(l.AllNext()))

	l.Push(sample(5, 1))
	l.Push(sample(6, 1))
	s, _ := l.Next()
	assert.Equal(t, int64(6), s.Time)
}

func TestLastAvailable(t *testing.T) {
	l := NewDataList(LastAvailable, DefaultLimits())
	assert.Equal(t, 0, l.Push(sample(1, 4)))
	assert.Equal(t, 1, l.Push(sample(2, 4)))
	assert.True(t, l.HasNewData())
	assert.Equal(t, 4, l.MemoryFootprint())

	s, ok := l.Next()
	require.True(t, ok)
	assert.Equal(t, int64(2), s.Time)
	assert.False(t, l.HasNewData())
	assert.Nil(t, l.AllNext())
	assert.Equal(t, int64(2), l.Time())
}

func TestReset(t *testing.T) {
	l := NewDataList(FIFO, DefaultLimits())
	l.Push(sample(1, 1))
	l.Push(sample(2, 1))
	l.Reset(sample(3, 1))
	assert.Equal(t, []int64{3}, times(l.AllNext()))
}

func TestManagerDefaultsInheritance(t *testing.T) {
	m := NewManager()
	assert.Equal(t, DefaultLimits(), m.Defaults())

	a := m.NewInput("a")
	b := m.NewInput("b")
	b.SetLimits(Limits{Type: Number, MaxSize: 10})

	m.SetListLimitType(Number)
	m.SetMaxListSize(2)

	// future inputs inherit too
	c := m.NewInput("c")

	assert.Equal(t, Limits{Type: Number, MaxSize: 2, MaxMemory: DefaultMaxListMemory}, a.List().Limits())
	assert.Equal(t, 10, b.List().Limits().MaxSize)
	assert.Equal(t, 2, c.List().Limits().MaxSize)

	b.UseDefaultLimits()
	assert.Equal(t, 2, b.List().Limits().MaxSize)
	assert.False(t, b.HasOverride())
}

func TestInputCountersAndNotify(t *testing.T) {
	m := NewManager()
	m.SetDefaults(Limits{Type: Number, MaxSize: 1})
	in := m.NewInput("in")

	in.Push(sample(1, 1))
	in.Push(sample(2, 1))
	in.Push(sample(3, 1))

	select {
	case <-in.Notify():
	default:
		t.Fatal("expected a notification")
	}
	assert.Equal(t, int64(3), in.Received())
	assert.Equal(t, int64(2), in.Dropped())
	assert.Equal(t, int64(2), m.Dropped())

	m.ClearInputBuffers()
	assert.False(t, in.List().HasNewData())

	in.Close()
	assert.Empty(t, m.Inputs())
}

func TestSetListTypeKeepsLimits(t *testing.T) {
	in := NewInput("x", FIFO)
	in.SetLimits(Limits{Type: Number, MaxSize: 4})
	in.SetListType(LIFO)
	assert.Equal(t, LIFO, in.List().Type())
	assert.Equal(t, 4, in.List().Limits().MaxSize)
}

func TestParseLimitType(t *testing.T) {
	for _, lt := range []LimitType{None, Number, MemorySize, Number | MemorySize} {
		got, err := ParseLimitType(lt.String())
		require.NoError(t, err)
		assert.Equal(t, lt, got)
	}
	_, err := ParseLimitType("bogus")
	assert.Error(t, err)
}
