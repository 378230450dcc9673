package challenge_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/swarmmesh/substrate/pkg/challenge"
)

func TestAbuseTracker_RateLimitExceeded(t *testing.T) {
	now := time.Now()
	a := challenge.NewAbuseTracker().WithClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		now = now.Add(time.Minute)
		allowed, _ := a.RecordSubmission("alice")
		assert.True(t, allowed)
	}
	now = now.Add(time.Minute)
	allowed, reason := a.RecordSubmission("alice")
	assert.False(t, allowed)
	assert.Contains(t, reason, "rate limit")
}

func TestAbuseTracker_RapidFireBurstDetected(t *testing.T) {
	now := time.Now()
	a := challenge.NewAbuseTracker().WithClock(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		allowed, _ := a.RecordSubmission("bob")
		assert.True(t, allowed)
		now = now.Add(time.Second)
	}
	allowed, reason := a.RecordSubmission("bob")
	assert.False(t, allowed)
	assert.Contains(t, reason, "burst")
}

func TestAbuseTracker_LowQualityChallengerFlagged(t *testing.T) {
	a := challenge.NewAbuseTracker()
	for i := 0; i < 5; i++ {
		a.RecordOutcome("eve", false)
	}
	assert.True(t, a.IsLowQuality("eve"))
}

func TestAbuseTracker_InsufficientSampleNotFlagged(t *testing.T) {
	a := challenge.NewAbuseTracker()
	a.RecordOutcome("frank", false)
	assert.False(t, a.IsLowQuality("frank"))
}

func TestAbuseTracker_GoodTrackRecordNotFlagged(t *testing.T) {
	a := challenge.NewAbuseTracker()
	for i := 0; i < 10; i++ {
		a.RecordOutcome("carol", i%2 == 0)
	}
	assert.False(t, a.IsLowQuality("carol"))
}
