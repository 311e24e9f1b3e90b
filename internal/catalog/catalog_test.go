package catalog_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Houeta/edition-tracker/internal/catalog"
	"github.com/Houeta/edition-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
	"data": [
		{
			"itemCollectionId": 1,
			"title": "Dragon",
			"edition": {"status": "active", "available": 50, "size": 1000, "startDate": "2026-10-01 17:00:00"},
			"images": {"main": {"url": "https://img.example.com/dragon.jpg"}}
		},
		{
			"itemCollectionId": 2,
			"title": "Phoenix",
			"edition": {"status": "upcoming", "available": 0, "size": 500, "startDate": "2026-10-21 17:00:00"},
			"images": {"main": {"url": "https://img.example.com/phoenix.jpg"}}
		},
		{
			"itemCollectionId": 3,
			"title": "Archived",
			"edition": {"status": "archived", "available": 0, "size": 100}
		}
	]
}`

func newTestClient(url string, attempts uint) *catalog.Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return catalog.NewClient(logger, catalog.Settings{
		URL:        url,
		Timeout:    time.Second,
		Attempts:   attempts,
		RetryDelay: time.Millisecond,
	})
}

func TestFetchSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/artworks/limited", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(snapshotJSON))
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/artworks/limited/", 1)

	listings, err := client.FetchSnapshot(t.Context())

	require.NoError(t, err)
	expected := []models.Listing{
		{
			ID: 1, Title: "Dragon", Status: models.StatusActive, Stock: 50, Size: 1000,
			StartDate: "2026-10-01 17:00:00", ImageURL: "https://img.example.com/dragon.jpg",
		},
		{
			ID: 2, Title: "Phoenix", Status: models.StatusUpcoming, Stock: 0, Size: 500,
			StartDate: "2026-10-21 17:00:00", ImageURL: "https://img.example.com/phoenix.jpg",
		},
	}
	assert.Equal(t, expected, listings)
}

func TestFetchSnapshot_Failures(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		body          string
		expectedCalls int32
		expectedMsg   string
	}{
		{
			name:          "server error is retried",
			status:        http.StatusInternalServerError,
			body:          "boom",
			expectedCalls: 3,
			expectedMsg:   "status code error: [500]",
		},
		{
			name:          "client error is not retried",
			status:        http.StatusForbidden,
			body:          "nope",
			expectedCalls: 1,
			expectedMsg:   "status code error: [403]",
		},
		{
			name:          "invalid json",
			status:        http.StatusOK,
			body:          "<html></html>",
			expectedCalls: 1,
			expectedMsg:   "data cannot be parsed as JSON",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL, 3)

			listings, err := client.FetchSnapshot(t.Context())

			assert.Nil(t, listings)
			require.ErrorIs(t, err, catalog.ErrFetchFailure)
			assert.Contains(t, err.Error(), tc.expectedMsg)
			assert.Equal(t, tc.expectedCalls, calls.Load())
		})
	}
}

func TestFetchSnapshot_RecoversAfterTransientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)

	listings, err := client.FetchSnapshot(t.Context())

	require.NoError(t, err)
	assert.Empty(t, listings)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/limited/7":
			_, _ = w.Write([]byte(`{"data": {"itemCollectionId": 7, "title": "Kraken",
				"edition": {"status": "active", "available": 0, "size": 750}}}`))
		case "/limited/8":
			_, _ = w.Write([]byte(`{"data": null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/limited", 2)

	t.Run("success", func(t *testing.T) {
		listing, err := client.FetchListing(t.Context(), 7)

		require.NoError(t, err)
		assert.Equal(t, &models.Listing{ID: 7, Title: "Kraken", Status: models.StatusActive, Stock: 0, Size: 750}, listing)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.FetchListing(t.Context(), 9)

		require.ErrorIs(t, err, catalog.ErrLookupFailure)
		assert.NotErrorIs(t, err, catalog.ErrFetchFailure)
		assert.Contains(t, err.Error(), "id 9")
	})

	t.Run("empty data", func(t *testing.T) {
		_, err := client.FetchListing(t.Context(), 8)

		require.ErrorIs(t, err, catalog.ErrLookupFailure)
		assert.Contains(t, err.Error(), "empty response")
	})
}
