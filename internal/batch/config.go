package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/proposalhub/proposalhub-backend/pkg/config"
)

const (
	defaultMaxBatchSize    = 10
	defaultMaxWindow       = 5 * time.Minute
	defaultFlushInterval   = 5 * time.Second
	defaultRetryBackoff    = 30 * time.Second
	defaultDeliveryWorkers = 4
)

// QuietHours is a daily time-of-day range during which only critical
// notifications go out. Start is inclusive, end exclusive, and the range may
// wrap past midnight (22:00 to 07:00).
type QuietHours struct {
	StartMinute int
	EndMinute   int
}

// Contains reports whether the minute-of-day falls inside the range.
func (q QuietHours) Contains(minuteOfDay int) bool {
	if q.StartMinute == q.EndMinute {
		return false
	}
	if q.StartMinute < q.EndMinute {
		return minuteOfDay >= q.StartMinute && minuteOfDay < q.EndMinute
	}
	return minuteOfDay >= q.StartMinute || minuteOfDay < q.EndMinute
}

// Config tunes one engine instance. Times of day are interpreted in Location.
type Config struct {
	MaxBatchSize    int
	MaxWindow       time.Duration
	FlushInterval   time.Duration
	RetryBackoff    time.Duration
	DeliveryWorkers int
	QuietHours      *QuietHours
	WeekendMode     bool
	Location        *time.Location
}

// ConfigFromEnv translates environment configuration into an engine config.
func ConfigFromEnv(cfg config.BatchConfig) (Config, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("loading batch timezone %q: %w", tz, err)
		}
		loc = parsed
	}

	out := Config{
		MaxBatchSize:    cfg.MaxBatchSize,
		MaxWindow:       cfg.MaxWindow,
		FlushInterval:   cfg.FlushInterval,
		RetryBackoff:    cfg.RetryBackoff,
		DeliveryWorkers: cfg.DeliveryWorkers,
		WeekendMode:     cfg.WeekendMode,
		Location:        loc,
	}

	if cfg.QuietHoursEnabled {
		start, err := parseMinuteOfDay(cfg.QuietHoursStart)
		if err != nil {
			return Config{}, fmt.Errorf("quiet hours start: %w", err)
		}
		end, err := parseMinuteOfDay(cfg.QuietHoursEnd)
		if err != nil {
			return Config{}, fmt.Errorf("quiet hours end: %w", err)
		}
		if start == end {
			return Config{}, fmt.Errorf("quiet hours start and end must differ")
		}
		out.QuietHours = &QuietHours{StartMinute: start, EndMinute: end}
	}

	return out.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = defaultMaxWindow
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.DeliveryWorkers <= 0 {
		c.DeliveryWorkers = defaultDeliveryWorkers
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

func parseMinuteOfDay(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}
