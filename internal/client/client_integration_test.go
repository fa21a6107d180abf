//go:build integration
// +build integration

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/retry"
)

func isValidAPIKeyFormat(key string) error {
	if len(key) != 32 {
		return fmt.Errorf("API key length is %d, expected 32", len(key))
	}

	hexPattern := regexp.MustCompile(`^[0-9a-fA-F]+$`)
	if !hexPattern.MatchString(key) {
		return fmt.Errorf("API key contains non-hexadecimal characters")
	}

	return nil
}

func integrationClient(t *testing.T) *OpenWeatherClient {
	t.Helper()
	apiKey := os.Getenv("OPENWEATHERMAP_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHERMAP_API_KEY not set, skipping integration test")
	}
	if err := isValidAPIKeyFormat(apiKey); err != nil {
		t.Fatalf("API key format validation failed: %v", err)
	}
	client, err := NewOpenWeatherClient(apiKey, DefaultAPIURL, 5*time.Second, retry.DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return client
}

func TestOpenWeatherClient_ValidateAPIKey_Integration(t *testing.T) {
	client := integrationClient(t)

	if err := client.ValidateAPIKey(context.Background()); err != nil {
		t.Errorf("ValidateAPIKey() error = %v, want nil (API key may not be activated yet)", err)
	}
}

func TestOpenWeatherClient_Fetch_Integration(t *testing.T) {
	client := integrationClient(t)

	record, err := client.Fetch(context.Background(), "London")
	if err != nil {
		t.Fatalf("Fetch() error = %v (API key may not be activated yet)", err)
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(record, &body); err != nil {
		t.Fatalf("Fetch() returned non-JSON payload: %v", err)
	}
	if body.Name == "" {
		t.Error("Fetch() payload has no name")
	}
}
