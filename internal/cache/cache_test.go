package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

type failingBackend struct {
	err error
}

func (f *failingBackend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, f.err
}

func (f *failingBackend) Write(ctx context.Context, key string, data []byte) error {
	return f.err
}

func newTestStore(backend Backend, now time.Time) *Store {
	s := NewStore(backend, DefaultTTL, nil)
	s.now = func() time.Time { return now }
	return s
}

// TestStore_PutGet verifies that Put followed immediately by Get returns an equal record.
func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), DefaultTTL, nil)

	rec := models.WeatherRecord(`{"temp":290,"name":"Paris"}`)
	if err := s.Put(ctx, "Paris", rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := s.Get(ctx, "Paris")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(got) != string(rec) {
		t.Errorf("Get() = %s, want %s", got, rec)
	}
}

// TestStore_Get_Miss verifies that Get returns ok=false when no entry exists.
func TestStore_Get_Miss(t *testing.T) {
	s := NewStore(NewMemoryBackend(), DefaultTTL, nil)

	_, ok, err := s.Get(context.Background(), "Nowhere")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestStore_Get_Expiry verifies the freshness boundary: age < TTL is a hit,
// age >= TTL is a miss, and a stale entry is not removed.
func TestStore_Get_Expiry(t *testing.T) {
	ctx := context.Background()
	written := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend()
	if err := newTestStore(backend, written).Put(ctx, "Oslo", models.WeatherRecord(`{"temp":270}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	tests := []struct {
		name    string
		age     time.Duration
		wantHit bool
	}{
		{"just written", 0, true},
		{"almost expired", DefaultTTL - time.Nanosecond, true},
		{"exactly ttl", DefaultTTL, false},
		{"long expired", time.Hour, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok, err := newTestStore(backend, written.Add(tc.age)).Get(ctx, "Oslo")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if ok != tc.wantHit {
				t.Errorf("Get() ok = %v, want %v", ok, tc.wantHit)
			}
		})
	}

	if _, ok, _ := backend.Read(ctx, "Oslo"); !ok {
		t.Error("stale entry should be left in the backend")
	}
}

// TestStore_Get_InvalidCity verifies that an invalid name is a silent miss and
// never touches the backend.
func TestStore_Get_InvalidCity(t *testing.T) {
	s := NewStore(&failingBackend{err: errors.New("must not be called")}, DefaultTTL, nil)

	_, ok, err := s.Get(context.Background(), "123")
	if err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if ok {
		t.Error("Get() ok = true, want false")
	}
}

// TestStore_Put_InvalidCity verifies that Put does not swallow validation errors.
func TestStore_Put_InvalidCity(t *testing.T) {
	s := NewStore(NewMemoryBackend(), DefaultTTL, nil)

	err := s.Put(context.Background(), "../etc", models.WeatherRecord(`{}`))
	if !errors.Is(err, validation.ErrInvalidCityName) {
		t.Fatalf("Put() error = %v, want ErrInvalidCityName", err)
	}
	if apperrors.KindOf(err) != apperrors.KindInvalidInput {
		t.Errorf("Put() kind = %q, want invalid_input", apperrors.KindOf(err))
	}
}

func TestStore_Get_BackendError(t *testing.T) {
	cause := errors.New("disk on fire")
	s := NewStore(&failingBackend{err: cause}, DefaultTTL, nil)

	_, ok, err := s.Get(context.Background(), "Paris")
	if !errors.Is(err, cause) {
		t.Fatalf("Get() error = %v, want %v", err, cause)
	}
	if ok {
		t.Error("Get() ok = true on backend error")
	}
}

func TestStore_Put_BackendError(t *testing.T) {
	cause := errors.New("disk full")
	s := NewStore(&failingBackend{err: cause}, DefaultTTL, nil)

	if err := s.Put(context.Background(), "Paris", models.WeatherRecord(`{}`)); !errors.Is(err, cause) {
		t.Fatalf("Put() error = %v, want %v", err, cause)
	}
}

// TestStore_Get_MalformedEntries verifies that entries without a usable
// timestamp or with a corrupt body are misses.
func TestStore_Get_MalformedEntries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"no timestamp", `{"weather":{"temp":1}}`},
		{"bad timestamp", `{"timestamp":"yesterday","weather":{"temp":1}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend := NewMemoryBackend()
			_ = backend.Write(ctx, "Rome", []byte(tc.raw))
			_, ok, err := NewStore(backend, DefaultTTL, nil).Get(ctx, "Rome")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if ok {
				t.Error("Get() ok = true, want false")
			}
		})
	}
}

// TestStore_EntryFormat verifies the serialized entry shape and that naive
// timestamps from older writers are read as UTC.
func TestStore_EntryFormat(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend()
	s := newTestStore(backend, now)

	if err := s.Put(ctx, "Paris", models.WeatherRecord(`{"temp": 290}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	raw, _, _ := backend.Read(ctx, "Paris")
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if string(body["timestamp"]) != `"2025-06-01T12:00:00Z"` {
		t.Errorf("timestamp = %s", body["timestamp"])
	}
	if string(body["weather"]) != `{"temp":290}` {
		t.Errorf("weather = %s", body["weather"])
	}

	_ = backend.Write(ctx, "Lyon", []byte(`{"timestamp":"2025-06-01T11:58:00.123456","weather":{"temp":1}}`))
	if _, ok, _ := s.Get(ctx, "Lyon"); !ok {
		t.Error("Get() should accept a naive timestamp two minutes old")
	}
}
