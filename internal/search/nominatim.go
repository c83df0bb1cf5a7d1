// Package search resolves free-text place queries into coordinates.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

// Nominatim defaults.
const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"
	UserAgent           = "Grovi-CropMonitoring/1.0"
	CountryCodes        = "th"
	ResultLimit         = 8
)

// Geocoder turns a query into places.
type Geocoder interface {
	Search(ctx context.Context, q string) ([]model.Place, error)
}

// Nominatim queries an OpenStreetMap Nominatim endpoint.
type Nominatim struct {
	endpoint string
	http     *http.Client
}

var _ Geocoder = (*Nominatim)(nil)

// NewNominatim returns a client for endpoint (DefaultNominatimURL when empty).
func NewNominatim(endpoint string, hc *http.Client) *Nominatim {
	if endpoint == "" {
		endpoint = DefaultNominatimURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Nominatim{endpoint: endpoint, http: hc}
}

// nominatimPlace mirrors the upstream record; coordinates arrive as strings.
type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Type        string `json:"type"`
	Class       string `json:"class"`
}

// Search implements Geocoder. Records with unparsable coordinates are skipped.
func (n *Nominatim) Search(ctx context.Context, q string) ([]model.Place, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	v := url.Values{
		"q":              {q},
		"format":         {"json"},
		"countrycodes":   {CountryCodes},
		"limit":          {strconv.Itoa(ResultLimit)},
		"addressdetails": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim: %w: %w", errs.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("nominatim: status %d: %w", resp.StatusCode, errs.ErrTransient)
	}

	var raw []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	out := make([]model.Place, 0, len(raw))
	for _, p := range raw {
		lat, err1 := strconv.ParseFloat(p.Lat, 64)
		lon, err2 := strconv.ParseFloat(p.Lon, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, model.Place{DisplayName: p.DisplayName, Lat: lat, Lon: lon, Type: p.Type, Class: p.Class})
	}
	return out, nil
}
