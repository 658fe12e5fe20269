package sentinel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(syncTime, offsetUS, quality float64) *Snapshot {
	return &Snapshot{
		Status: LatticeStatus{Quality: quality},
		Quality: QualityData{
			Quality:  quality,
			OffsetUS: offsetUS,
			SyncTime: syncTime,
		},
		ObservedAt: time.Now(),
	}
}

func TestSchedulerDecide(t *testing.T) {
	t.Run("quality below floor forces resync", func(t *testing.T) {
		s := NewScheduler(10 * time.Second)
		d := s.Decide(snapshotAt(1, 0, 0.5))
		assert.True(t, d.Resync)
		assert.Equal(t, "quality below floor", d.Reason)
	})

	t.Run("healthy quality inside interval holds off", func(t *testing.T) {
		s := NewScheduler(10 * time.Second)
		s.MarkResync()
		d := s.Decide(snapshotAt(1, 100, 1.0))
		assert.False(t, d.Resync)
	})

	t.Run("elapsed interval triggers resync", func(t *testing.T) {
		s := NewScheduler(10 * time.Second)
		s.lastResync = time.Now().Add(-2 * time.Hour)
		d := s.Decide(snapshotAt(1, 100, 1.0))
		assert.True(t, d.Resync)
		assert.Equal(t, "sync interval elapsed", d.Reason)
	})

	t.Run("interval never collapses below the minimum", func(t *testing.T) {
		s := NewScheduler(time.Second)
		// Wildly growing offsets imply enormous drift.
		var d Decision
		for i := 0; i < 4; i++ {
			d = s.Decide(snapshotAt(float64(i), float64(i)*1e6, 1.0))
		}
		assert.GreaterOrEqual(t, d.NextInterval, MinResyncInterval)
	})

	t.Run("regression takes over after warmup", func(t *testing.T) {
		s := NewScheduler(time.Second)
		s.MarkResync()
		// 50 µs of offset gained per second of sync time: 50 ppm.
		var d Decision
		for i := 0; i < regressionWarmup+4; i++ {
			ts := float64(i)
			d = s.Decide(snapshotAt(ts, ts*50, 1.0))
		}
		require.InDelta(t, 50.0, d.DriftPPM, 1.0)
		// 50 ppm drift → 10 s optimal interval.
		assert.InDelta(t, 10.0, d.NextInterval.Seconds(), 0.5)
	})
}
