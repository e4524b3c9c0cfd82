package notifications

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikroblog/discussions/internal/config"
	"github.com/mikroblog/discussions/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSummary() *models.RunSummary {
	return &models.RunSummary{
		Mode:      "discover",
		IDStart:   100,
		IDEnd:     200,
		Fetched:   42,
		Kept:      3,
		ByQuality: map[string]int{"VeryGood": 1, "GoodComments": 2},
		StartedAt: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:  95 * time.Second,
	}
}

func TestSendRunSummary_NoChannelsConfigured(t *testing.T) {
	service := NewService(&config.Config{})

	assert.NoError(t, service.SendRunSummary(testSummary()))
}

func TestSendRunSummary_Webhook(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := NewService(&config.Config{WebhookURL: server.URL})

	require.NoError(t, service.SendRunSummary(testSummary()))

	assert.Equal(t, "application/json", gotContentType)

	var posted models.RunSummary
	require.NoError(t, json.Unmarshal(gotBody, &posted))
	assert.Equal(t, "discover", posted.Mode)
	assert.Equal(t, 100, posted.IDStart)
	assert.Equal(t, 3, posted.Kept)
}

func TestSendRunSummary_WebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	service := NewService(&config.Config{WebhookURL: server.URL})

	err := service.SendRunSummary(testSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook")
}

func TestBuildEmailBody(t *testing.T) {
	body := buildEmailBody(testSummary())

	assert.Contains(t, body, "Mode:     discover")
	assert.Contains(t, body, "Range:    100-200")
	assert.Contains(t, body, "Fetched:  42 discussions")
	assert.Contains(t, body, "Kept:     3 discussions")
	assert.Contains(t, body, "GoodComments")
	assert.Contains(t, body, "VeryGood")

	// Tiers are listed in a stable order.
	assert.Less(t, strings.Index(body, "GoodComments"), strings.Index(body, "VeryGood"))
}
