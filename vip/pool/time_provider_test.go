package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockTimeProvider(t *testing.T) {
	clock := NewMockTimeProvider()
	assert.Equal(t, time.Unix(0, 0), clock.Now())

	immediate := clock.After(0)
	select {
	case <-immediate:
	default:
		t.Fatal("a zero delay fires immediately")
	}

	short := clock.After(10 * time.Millisecond)
	long := clock.After(time.Second)
	assert.Equal(t, 2, clock.Pending())

	clock.Advance(5 * time.Millisecond)
	select {
	case <-short:
		t.Fatal("fired before its deadline")
	default:
	}

	clock.Advance(5 * time.Millisecond)
	fired := <-short
	assert.Equal(t, time.Unix(0, 0).Add(10*time.Millisecond), fired)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(time.Hour)
	<-long
	assert.Equal(t, 0, clock.Pending())
}

func TestRealTimeProvider(t *testing.T) {
	var clock TimeProvider = RealTimeProvider{}
	start := clock.Now()
	<-clock.After(time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
}
