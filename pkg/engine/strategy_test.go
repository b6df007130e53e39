package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/STPDevteam/awesome-server/pkg/mcp"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name     string
		class    mcp.ErrorClass
		errMsg   string
		attempts int
		want     models.FailureStrategy
	}{
		{"internal error needs a human", mcp.ClassUnknown,
			"internal error in tool runtime", 1, models.StrategyManualIntervention},
		{"auth failure needs a human", mcp.ClassToolReported,
			"401 unauthorized", 1, models.StrategyManualIntervention},
		{"character limit wants a different approach", mcp.ClassToolReported,
			"tweet exceeds character limit of 280", 1, models.StrategyAlternative},
		{"validation failure wants a different approach", mcp.ClassToolReported,
			"validation failed: missing field 'content'", 1, models.StrategyAlternative},
		{"connection class skips", mcp.ClassConnection,
			"broken pipe", 3, models.StrategySkip},
		{"not-connected message skips regardless of class", mcp.ClassUnknown,
			"session not connected", 1, models.StrategySkip},
		{"first timeout exhaustion retries", mcp.ClassTimeout,
			"context deadline exceeded", 3, models.StrategyRetry},
		{"repeat timeout offender skips", mcp.ClassTimeout,
			"context deadline exceeded", 6, models.StrategySkip},
		{"network error retries once", mcp.ClassUnknown,
			"network unreachable", 2, models.StrategyRetry},
		{"unknown first attempt retries", mcp.ClassUnknown,
			"something odd", 1, models.StrategyRetry},
		{"unknown second attempt goes alternative", mcp.ClassUnknown,
			"something odd", 2, models.StrategyAlternative},
		{"unknown fifth attempt skips", mcp.ClassUnknown,
			"something odd", 5, models.StrategySkip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectStrategy(tt.class, tt.errMsg, tt.attempts, models.DefaultMaxRetries)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminatesRun(t *testing.T) {
	assert.True(t, terminatesRun(models.StrategySkip, 1))
	assert.True(t, terminatesRun(models.StrategyManualIntervention, 1))
	assert.False(t, terminatesRun(models.StrategyRetry, 4))

	// alternative only terminates once the tool has burned three attempts.
	assert.False(t, terminatesRun(models.StrategyAlternative, 2))
	assert.True(t, terminatesRun(models.StrategyAlternative, 3))
}
