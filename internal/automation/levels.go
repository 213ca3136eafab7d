package automation

// Level is a coarse classification used for status badges.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"

	LevelGood Level = "good"
	LevelFair Level = "fair"
	LevelPoor Level = "poor"
)

// UsageLevel classifies a utilization percentage.
func UsageLevel(v float64) Level {
	switch {
	case v < 40:
		return LevelLow
	case v < 70:
		return LevelModerate
	default:
		return LevelHigh
	}
}

// PerformanceLevel classifies a score where higher is better.
func PerformanceLevel(v float64) Level {
	switch {
	case v > 80:
		return LevelGood
	case v > 50:
		return LevelFair
	default:
		return LevelPoor
	}
}

// LatencyLevel classifies a response time in milliseconds.
func LatencyLevel(ms float64) Level {
	switch {
	case ms < 100:
		return LevelGood
	case ms < 200:
		return LevelFair
	default:
		return LevelPoor
	}
}

// HealthScore is the mean headroom across the utilization fields.
func HealthScore(m ResourceMetrics) float64 {
	used := (m.CPU + m.Memory + m.Storage + m.Network) / 4
	return 100 - used
}
