package geolocation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"luascript-server/internal/logger"
)

// Location is a set of geographic coordinates with place names.
type Location struct {
	Latitude  float64
	Longitude float64
	City      string
	Country   string
}

// LookupByIP determines the host's location from its public IP address
// using the free ip-api.com service (no API key, 45 requests/minute).
// Used to seed the latitude/longitude settings when none are stored.
func LookupByIP() (*Location, error) {
	logger.Debug("Attempting to determine location from IP address...")

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	resp, err := client.Get("http://ip-api.com/json/?fields=status,message,country,city,lat,lon")
	if err != nil {
		return nil, fmt.Errorf("failed to get location from IP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("location API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result struct {
		Status  string  `json:"status"`
		Message string  `json:"message"`
		Country string  `json:"country"`
		City    string  `json:"city"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("location API error: %s", result.Message)
	}

	location := &Location{
		Latitude:  result.Lat,
		Longitude: result.Lon,
		City:      result.City,
		Country:   result.Country,
	}

	logger.Info("Detected location from IP: %s, %s (%.4f, %.4f)",
		location.City, location.Country, location.Latitude, location.Longitude)

	return location, nil
}
