package cache

import (
	"context"
	"os"
	"testing"

	"freefall/internal/game"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestService(t *testing.T) (Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client), mr
}

func TestSnapshot_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	snap := game.Snapshot{
		Status:     game.StatusRunning,
		RoundID:    12,
		Hash:       "abc123",
		Multiplier: 2.31,
	}
	if err := svc.StoreSnapshot(ctx, snap); err != nil {
		t.Fatalf("StoreSnapshot() error = %v", err)
	}

	got, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got == nil {
		t.Fatal("Snapshot() = nil, want stored snapshot")
	}
	if got.RoundID != 12 || got.Status != game.StatusRunning || got.Multiplier != 2.31 {
		t.Errorf("Snapshot() = %+v, want %+v", got, snap)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got != nil {
		t.Errorf("Snapshot() = %+v, want nil when nothing is cached", got)
	}
}

func TestPrice_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.SetPrice(ctx, game.CurrencyBTC, 52340.5); err != nil {
		t.Fatalf("SetPrice() error = %v", err)
	}

	price, ok, err := svc.Price(ctx, game.CurrencyBTC)
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if !ok {
		t.Fatal("Price() ok = false, want cached hit")
	}
	if price != 52340.5 {
		t.Errorf("Price() = %v, want 52340.5", price)
	}
}

func TestPrice_Expires(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	if err := svc.SetPrice(ctx, game.CurrencyETH, 3100); err != nil {
		t.Fatalf("SetPrice() error = %v", err)
	}

	mr.FastForward(priceTTL * 2)

	_, ok, err := svc.Price(ctx, game.CurrencyETH)
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if ok {
		t.Error("Price() ok = true after TTL expiry")
	}
}

func TestPrice_Miss(t *testing.T) {
	svc, _ := newTestService(t)

	_, ok, err := svc.Price(context.Background(), game.CurrencyBTC)
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if ok {
		t.Error("Price() ok = true for uncached currency")
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "environment variable exists",
			key:        "TEST_KEY_EXISTS",
			defaultVal: "default",
			envValue:   "custom_value",
			want:       "custom_value",
		},
		{
			name:       "environment variable does not exist",
			key:        "TEST_KEY_NOT_EXISTS",
			defaultVal: "default_value",
			envValue:   "",
			want:       "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			if got := getEnv(tt.key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal int
		envValue   string
		want       int
	}{
		{name: "valid integer", key: "TEST_INT_VALID", defaultVal: 0, envValue: "42", want: 42},
		{name: "invalid integer", key: "TEST_INT_INVALID", defaultVal: 10, envValue: "not_a_number", want: 10},
		{name: "empty value", key: "TEST_INT_EMPTY", defaultVal: 5, envValue: "", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			if got := getEnvAsInt(tt.key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestService_Interface(t *testing.T) {
	var _ Service = (*service)(nil)
}
