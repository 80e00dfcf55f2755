package config

import (
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

func TestLoadNearbyDefaults(t *testing.T) {
	t.Setenv("NEARBY_ZONE_RADIUS_METERS", "")
	t.Setenv("NEARBY_SHOUT_LIFETIME", "")
	t.Setenv("NEARBY_ZONE_LIFETIME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	testutil.AssertEqual(t, "zone radius", cfg.Nearby.ZoneRadiusMeters, 50000.0)
	testutil.AssertEqual(t, "shout lifetime", cfg.Nearby.ShoutLifetime, 24*time.Hour)
	testutil.AssertEqual(t, "zone lifetime", cfg.Nearby.ZoneLifetime, 24*time.Hour)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("NEARBY_ZONE_LIFETIME", "48h")
	t.Setenv("NEARBY_SHOUT_LIFETIME", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	testutil.AssertEqual(t, "zone lifetime", cfg.Nearby.ZoneLifetime, 48*time.Hour)
	testutil.AssertEqual(t, "shout lifetime", cfg.Nearby.ShoutLifetime, time.Hour)
}

func TestLoadRejectsZeroZoneLifetime(t *testing.T) {
	t.Setenv("NEARBY_ZONE_LIFETIME", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a zero zone lifetime")
	}
}
