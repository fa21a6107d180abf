//go:build integration
// +build integration

package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/testhelpers"
)

func TestWeatherService_Integration_LiveLookup(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	env := testhelpers.SetupIntegrationService(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	record, err := env.Service.GetWeather(ctx, "London")
	if err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if !json.Valid(record) {
		t.Fatalf("record is not valid JSON: %s", record)
	}
	if got := env.Objects.Count(); got != 1 {
		t.Errorf("objects after first lookup = %d, want 1", got)
	}

	cached, ok, err := env.Store.Get(ctx, "London")
	if err != nil || !ok {
		t.Fatalf("Store.Get() = ok %v, err %v; want cached entry", ok, err)
	}
	if string(cached) != string(record) {
		t.Error("cached payload differs from returned payload")
	}

	if _, err := env.Service.GetWeather(ctx, "London"); err != nil {
		t.Fatalf("second GetWeather() error = %v", err)
	}
	if got := env.Objects.Count(); got != 1 {
		t.Errorf("objects after cached lookup = %d, want 1", got)
	}
}
