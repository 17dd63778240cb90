package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

const swedenResponse = `[{
	"name": {"common": "Sweden", "official": "Kingdom of Sweden"},
	"capital": ["Stockholm"],
	"region": "Europe",
	"subregion": "Northern Europe",
	"population": 10353442,
	"languages": {"swe": "Swedish"},
	"currencies": {"SEK": {"name": "Swedish krona", "symbol": "kr"}}
}]`

func newCountryServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/name/Sweden":
			if !strings.Contains(r.URL.RawQuery, "fields=") {
				t.Errorf("expected fields query, got %q", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(swedenResponse))
		case "/name/Atlantis":
			http.Error(w, `{"status":404,"message":"Not Found"}`, http.StatusNotFound)
		default:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// TestCountryInformationFound checks the summary returned for a known
// country.
func TestCountryInformationFound(t *testing.T) {
	server := newCountryServer(t)
	capability := CountryInformation{BaseURL: server.URL, Client: server.Client()}

	output, err := capability.Invoke(context.Background(), map[string]any{"country": "Sweden"})
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	response := decodeToolResponse(t, output)
	if !response.OK || response.Tool != countryInformationFunction {
		t.Fatalf("expected ok response, got %s", output)
	}

	data, _ := response.Data.(map[string]any)
	if data["name"] != "Sweden" || data["region"] != "Europe" {
		t.Fatalf("unexpected summary %+v", data)
	}
	currencies, _ := data["currencies"].([]any)
	if len(currencies) != 1 || currencies[0] != "Swedish krona (SEK)" {
		t.Fatalf("unexpected currencies %+v", data["currencies"])
	}
}

// TestCountryInformationSoftFailures checks the lookups answered with an
// ok=false output rather than an error.
func TestCountryInformationSoftFailures(t *testing.T) {
	server := newCountryServer(t)
	capability := CountryInformation{BaseURL: server.URL, Client: server.Client()}

	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "unknown country", args: map[string]any{"country": "Atlantis"}},
		{name: "missing country", args: map[string]any{}},
		{name: "wrong type", args: map[string]any{"country": 46}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			output, err := capability.Invoke(context.Background(), test.args)
			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
			if response := decodeToolResponse(t, output); response.OK || response.Err == "" {
				t.Fatalf("expected error response, got %s", output)
			}
		})
	}
}

// TestCountryInformationServiceError checks that an unexpected status is
// returned as an error.
func TestCountryInformationServiceError(t *testing.T) {
	server := newCountryServer(t)
	capability := CountryInformation{BaseURL: server.URL, Client: server.Client()}

	if _, err := capability.Invoke(context.Background(), map[string]any{"country": "Narnia"}); err == nil {
		t.Fatal("expected error for unavailable service")
	}
}

// TestSummarizeCountrySortsLists checks that map-derived lists come back
// in a stable order.
func TestSummarizeCountrySortsLists(t *testing.T) {
	record := countryRecord{
		Languages: map[string]string{"fra": "French", "deu": "German", "ita": "Italian"},
		Currencies: map[string]map[string]string{
			"EUR": {"name": "Euro"},
			"CHF": {"name": "Swiss franc"},
		},
	}
	summary := summarizeCountry(record)
	if !slices.Equal(summary.Languages, []string{"French", "German", "Italian"}) {
		t.Fatalf("unexpected languages %v", summary.Languages)
	}
	if !slices.Equal(summary.Currencies, []string{"Euro (EUR)", "Swiss franc (CHF)"}) {
		t.Fatalf("unexpected currencies %v", summary.Currencies)
	}
}
