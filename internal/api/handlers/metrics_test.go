package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.50s"},
		{2*time.Minute + 3*time.Second, "2m3.00s"},
		{time.Hour + 5*time.Minute + 250*time.Millisecond, "1h5m0.25s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.in))
	}
}
