package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Config for integration tests
const (
	BaseURL = "http://localhost:8080"
)

func TestHealthCheck(t *testing.T) {
	resp, err := http.Get(BaseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserRegistration(t *testing.T) {
	payload := map[string]interface{}{
		"name":                "Integration Test User",
		"email":               fmt.Sprintf("test+%d@example.com", time.Now().UnixNano()),
		"sweep_interval_secs": 3600,
	}
	body, _ := json.Marshal(payload)

	resp, err := http.Post(BaseURL+"/users", "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		// print body for debugging
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		t.Fatalf("expected 201 Created, got %d: %s", resp.StatusCode, buf.String())
	}

	var result map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)

	_, ok := result["id"].(string)
	require.True(t, ok, "response should contain user id")
}

func TestUserRegistration_RejectsShortInterval(t *testing.T) {
	payload := map[string]interface{}{
		"name":                "Too Eager",
		"email":               "eager@example.com",
		"sweep_interval_secs": 10,
	}
	body, _ := json.Marshal(payload)

	resp, err := http.Post(BaseURL+"/users", "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	for _, path := range []string{
		"/api/v1/stats",
		"/api/v1/runs",
		"/api/v1/policies",
		"/api/v1/snapshots/raw-snapshot",
	} {
		resp, err := http.Get(BaseURL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestMain(m *testing.M) {
	// Optional: Check if service is up before running tests
	if err := waitForService(BaseURL + "/health"); err != nil {
		fmt.Printf("Skipping integration tests: service not available at %s\n", BaseURL)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func waitForService(url string) error {
	for i := 0; i < 30; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return nil
			}
		}
		time.Sleep(1 * time.Second)
	}
	return fmt.Errorf("service not reachable")
}
