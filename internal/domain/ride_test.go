package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRideStatus_Valid(t *testing.T) {
	for _, s := range []RideStatus{RideStatusPending, RideStatusClaimed, RideStatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, RideStatus("").Valid())
	assert.False(t, RideStatus("completed").Valid())
}

func TestRideStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to RideStatus
		want     bool
	}{
		{RideStatusPending, RideStatusClaimed, true},
		{RideStatusPending, RideStatusCancelled, true},
		{RideStatusPending, RideStatusPending, false},
		{RideStatusClaimed, RideStatusPending, true},
		{RideStatusClaimed, RideStatusCancelled, true},
		{RideStatusClaimed, RideStatusClaimed, false},
		{RideStatusCancelled, RideStatusPending, false},
		{RideStatusCancelled, RideStatusClaimed, false},
		{RideStatusCancelled, RideStatusCancelled, false},
		{RideStatus("unknown"), RideStatusClaimed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}
