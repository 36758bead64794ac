package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("POINTS_EARN_RATE", "-5")
	t.Setenv("ORDER_LOCK_TTL_SECONDS", "abc")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	t.Setenv("AUTO_MIGRATE", "maybe")
	t.Setenv("POINT_REDEMPTION_VALUE", "zero")
	t.Setenv("RECHECK_TIMEOUT_SECONDS", "-1")

	cfg := Load()
	if cfg.PointsEarnRate.String() != "10000" {
		t.Fatalf("expected default earn rate, got %s", cfg.PointsEarnRate)
	}
	if cfg.OrderLockTTL != 10*time.Second {
		t.Fatalf("expected 10s lock ttl, got %s", cfg.OrderLockTTL)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected 480 minute token ttl, got %d", cfg.AccessTokenTTLMinutes)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected auto migrate to default on")
	}
	if cfg.PointRedemptionValue.String() != "100" {
		t.Fatalf("expected default point value 100, got %s", cfg.PointRedemptionValue)
	}
	if cfg.RecheckTimeout != 5*time.Second {
		t.Fatalf("expected 5s recheck timeout, got %s", cfg.RecheckTimeout)
	}
}

func TestLoadSplitsKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("POINTS_EARN_RATE", "2500.5")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "kafka-1:9092" || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.PointsEarnRate.String() != "2500.5" {
		t.Fatalf("expected earn rate 2500.5, got %s", cfg.PointsEarnRate)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	if got := NewLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}
	if got := NewLogger("nonsense").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
}

func TestLoadReadsSettlementPolicy(t *testing.T) {
	t.Setenv("POINT_REDEMPTION_VALUE", "250")
	t.Setenv("RECHECK_TIMEOUT_SECONDS", "12")

	cfg := Load()
	if cfg.PointRedemptionValue.String() != "250" {
		t.Fatalf("expected point value 250, got %s", cfg.PointRedemptionValue)
	}
	if cfg.RecheckTimeout != 12*time.Second {
		t.Fatalf("expected 12s recheck timeout, got %s", cfg.RecheckTimeout)
	}
}
