package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultAssistantName         = "Country helper"
	defaultAssistantInstructions = "You're a travelling assistant, helping with information about destination countries."
	defaultAssistantModel        = "gpt-4-1106-preview"
	defaultCountriesURL          = "https://restcountries.com/v3.1"

	countryInformationFunction = "getCountryInformation"
)

// countryInformationSchema is the declaration sent when the assistant is
// created.
func countryInformationSchema() ToolSchema {
	return ToolSchema{
		Name:        countryInformationFunction,
		Description: "Determine information about a country",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"country": map[string]any{
					"type":        "string",
					"description": "Country name, e.g. Sweden",
				},
			},
			"required": []any{"country"},
		},
	}
}

// CountryInformation looks countries up in the REST Countries API.
type CountryInformation struct {
	BaseURL string
	Client  *http.Client
}

type countryRecord struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	Capital    []string                     `json:"capital"`
	Region     string                       `json:"region"`
	Subregion  string                       `json:"subregion"`
	Population int64                        `json:"population"`
	Languages  map[string]string            `json:"languages"`
	Currencies map[string]map[string]string `json:"currencies"`
}

// CountrySummary is the data returned to the assistant.
type CountrySummary struct {
	Name       string   `json:"name"`
	Official   string   `json:"officialName"`
	Capital    []string `json:"capital,omitempty"`
	Region     string   `json:"region"`
	Subregion  string   `json:"subregion,omitempty"`
	Population int64    `json:"population"`
	Languages  []string `json:"languages,omitempty"`
	Currencies []string `json:"currencies,omitempty"`
}

// Invoke expects a "country" argument. Unknown countries and missing
// arguments are answered with an ok=false output; only transport and
// decoding failures are returned as errors.
func (c CountryInformation) Invoke(ctx context.Context, args map[string]any) (string, error) {
	country, _ := args["country"].(string)
	country = strings.TrimSpace(country)
	if country == "" {
		return marshalToolResponse(countryInformationFunction, nil, errors.New("country is required"))
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = defaultCountriesURL
	}
	endpoint := fmt.Sprintf("%s/name/%s?fields=name,capital,region,subregion,population,languages,currencies",
		strings.TrimRight(baseURL, "/"), url.PathEscape(country))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	response, err := client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	log.Debug(fmt.Sprintf("received http(s) response: GET %s - %d", endpoint, response.StatusCode))

	switch response.StatusCode {
	case http.StatusOK:
		content, err := io.ReadAll(response.Body)
		if err != nil {
			return "", err
		}
		var records []countryRecord
		if err := json.Unmarshal(content, &records); err != nil {
			return "", fmt.Errorf("decode country response: %w", err)
		}
		if len(records) == 0 {
			return marshalToolResponse(countryInformationFunction, nil, fmt.Errorf("no country found for %q", country))
		}
		return marshalToolResponse(countryInformationFunction, summarizeCountry(records[0]), nil)

	case http.StatusNotFound:
		return marshalToolResponse(countryInformationFunction, nil, fmt.Errorf("no country found for %q", country))

	default:
		return "", fmt.Errorf("country lookup for %q: unexpected status code %d", country, response.StatusCode)
	}
}

func summarizeCountry(record countryRecord) CountrySummary {
	summary := CountrySummary{
		Name:       record.Name.Common,
		Official:   record.Name.Official,
		Capital:    record.Capital,
		Region:     record.Region,
		Subregion:  record.Subregion,
		Population: record.Population,
	}
	for _, language := range record.Languages {
		summary.Languages = append(summary.Languages, language)
	}
	for code, currency := range record.Currencies {
		if name := currency["name"]; name != "" {
			summary.Currencies = append(summary.Currencies, fmt.Sprintf("%s (%s)", name, code))
		} else {
			summary.Currencies = append(summary.Currencies, code)
		}
	}
	slices.Sort(summary.Languages)
	slices.Sort(summary.Currencies)
	return summary
}
