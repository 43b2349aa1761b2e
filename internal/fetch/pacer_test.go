package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacerSpacesSameHost(t *testing.T) {
	p := NewPacer(20, 0, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, p.Wait(ctx, "https://shop/page"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	start = time.Now()
	assert.NoError(t, p.Wait(ctx, "https://other/page"))
	assert.Less(t, time.Since(start), 40*time.Millisecond, "hosts have separate buckets")
}

func TestPacerDelayRange(t *testing.T) {
	p := NewPacer(0, 10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := p.delay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}

	assert.Zero(t, NewPacer(0, 0, 0).delay())
}

func TestPacerCancelled(t *testing.T) {
	p := NewPacer(0, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Wait(ctx, "https://shop/"))

	var nilPacer *Pacer
	assert.NoError(t, nilPacer.Wait(context.Background(), "https://shop/"))
}
