package rtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFirstSampleIsEstimate(t *testing.T) {
	e := NewEstimator()
	e.AddSample(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, e.Estimate())
}

func TestSmoothsTowardNewSamples(t *testing.T) {
	e := NewEstimator()
	e.AddSample(100 * time.Millisecond)
	e.AddSample(200 * time.Millisecond)
	got := e.Estimate()
	assert.Greater(t, got, 100*time.Millisecond)
	assert.Less(t, got, 200*time.Millisecond)
}

func TestResetClearsEstimate(t *testing.T) {
	e := NewEstimator()
	e.AddSample(50 * time.Millisecond)
	e.Reset()
	assert.Equal(t, time.Duration(0), e.Estimate())
}

func TestUnknownEstimateIsZero(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, time.Duration(0), e.Estimate())
}
