package engine

import (
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/mcp"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

// Cumulative attempt thresholds for the default strategy ladder.
const (
	alternativeThreshold = 2
	skipThreshold        = 5
)

// SelectStrategy decides what the engine does after a step exhausts its
// retries. attemptCount is the cumulative count for the tool across the
// whole run, including earlier steps that hit it.
//
// Precedence: message-specific buckets first, then error class, then the
// attempt-count ladder (retry → alternative at 2 → skip at 5).
func SelectStrategy(class mcp.ErrorClass, errMsg string, attemptCount, maxRetries int) models.FailureStrategy {
	msg := strings.ToLower(errMsg)

	switch {
	case containsAny(msg, "system error", "module error", "internal error", "panic"):
		return models.StrategyManualIntervention

	case containsAny(msg, "character limit", "too long", "exceeds maximum", "invalid format", "malformed", "validation"):
		return models.StrategyAlternative

	case containsAny(msg, "unauthorized", "forbidden", "permission denied", "invalid credentials", "authentication"):
		return models.StrategyManualIntervention

	case class == mcp.ClassConnection ||
		containsAny(msg, "not connected", "connection closed"):
		return models.StrategySkip

	case class == mcp.ClassTimeout ||
		containsAny(msg, "server error", "network", "bad gateway", "service unavailable"):
		// First exhaustion retries via replan; a repeat offender is skipped.
		if attemptCount > maxRetries+1 {
			return models.StrategySkip
		}
		return models.StrategyRetry

	case attemptCount >= skipThreshold:
		return models.StrategySkip

	case attemptCount >= alternativeThreshold:
		return models.StrategyAlternative

	default:
		return models.StrategyRetry
	}
}

// terminatesRun reports whether the strategy ends the run immediately.
// alternative terminates only after the same tool accumulated three or
// more attempts — otherwise the observer gets a chance to replan around it.
func terminatesRun(strategy models.FailureStrategy, attemptCount int) bool {
	switch strategy {
	case models.StrategySkip, models.StrategyManualIntervention:
		return true
	case models.StrategyAlternative:
		return attemptCount >= 3
	default:
		return false
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
