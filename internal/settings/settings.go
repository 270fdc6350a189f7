// Package settings is the typed key-value settings store backing live
// tuning of the detector and route views. Values live in redis so the
// companion apps and this daemon see the same knobs; every getter falls
// back to a documented default when the key is missing or unparsable.
package settings

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	keyDetectionEnabled = "settings:detection_enabled"
	keyDwellSeconds     = "settings:dwell_threshold_seconds"
	keyNotifyAllDay     = "settings:notification_all_day"
	keyShowAllRoutes    = "settings:show_all_routes"
)

const (
	DefaultDetectionEnabled = true
	DefaultDwellSeconds     = 45
	DefaultNotifyAllDay     = false
	DefaultShowAllRoutes    = false
)

type Service struct {
	redis *redis.Client
}

func NewService(client *redis.Client) *Service {
	return &Service{redis: client}
}

func (s *Service) DetectionEnabled(ctx context.Context) bool {
	return s.getBool(ctx, keyDetectionEnabled, DefaultDetectionEnabled)
}

func (s *Service) SetDetectionEnabled(ctx context.Context, v bool) error {
	return s.set(ctx, keyDetectionEnabled, strconv.FormatBool(v))
}

// DwellSeconds is read fresh on every detector check so the threshold can
// be tuned while a session is live.
func (s *Service) DwellSeconds(ctx context.Context) int {
	if s.redis == nil {
		return DefaultDwellSeconds
	}
	raw, err := s.redis.Get(ctx, keyDwellSeconds).Result()
	if err != nil {
		return DefaultDwellSeconds
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return DefaultDwellSeconds
	}
	return v
}

func (s *Service) SetDwellSeconds(ctx context.Context, v int) error {
	return s.set(ctx, keyDwellSeconds, strconv.Itoa(v))
}

func (s *Service) NotifyAllDay(ctx context.Context) bool {
	return s.getBool(ctx, keyNotifyAllDay, DefaultNotifyAllDay)
}

func (s *Service) SetNotifyAllDay(ctx context.Context, v bool) error {
	return s.set(ctx, keyNotifyAllDay, strconv.FormatBool(v))
}

func (s *Service) ShowAllRoutes(ctx context.Context) bool {
	return s.getBool(ctx, keyShowAllRoutes, DefaultShowAllRoutes)
}

func (s *Service) SetShowAllRoutes(ctx context.Context, v bool) error {
	return s.set(ctx, keyShowAllRoutes, strconv.FormatBool(v))
}

func (s *Service) getBool(ctx context.Context, key string, fallback bool) bool {
	if s.redis == nil {
		return fallback
	}
	raw, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func (s *Service) set(ctx context.Context, key, value string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Set(ctx, key, value, 0).Err()
}
