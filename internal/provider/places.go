package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PlacesClient looks up nearby contractors through a maps/places endpoint.
type PlacesClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewPlacesClient creates a contractor lookup client.
func NewPlacesClient(baseURL, apiKey string) *PlacesClient {
	return &PlacesClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type placesRequest struct {
	TextQuery string `json:"textQuery"`
}

type placesResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress       string  `json:"formattedAddress"`
		Rating                 float64 `json:"rating"`
		NationalPhoneNumber    string  `json:"nationalPhoneNumber"`
		GoogleMapsURI          string  `json:"googleMapsUri"`
	} `json:"places"`
}

// FindNearby returns contractors matching a job type near a location. Returns
// an empty slice (not an error) when nothing matches.
func (c *PlacesClient) FindNearby(ctx context.Context, jobType, location string) ([]ContractorResult, error) {
	body, err := json.Marshal(placesRequest{
		TextQuery: fmt.Sprintf("%s contractor near %s", jobType, location),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", "places.displayName,places.formattedAddress,places.rating,places.nationalPhoneNumber,places.googleMapsUri")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	results := make([]ContractorResult, 0, len(parsed.Places))
	for _, p := range parsed.Places {
		if p.DisplayName.Text == "" {
			continue
		}
		locator := p.GoogleMapsURI
		if locator == "" {
			locator = p.FormattedAddress
		}
		results = append(results, ContractorResult{
			Name:    p.DisplayName.Text,
			Locator: locator,
			Rating:  p.Rating,
			Contact: p.NationalPhoneNumber,
		})
	}
	return results, nil
}
