package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeoRecord is the provider-neutral subset of an IP geolocation answer.
type GeoRecord struct {
	IP          string
	CountryCode string
	CountryName string
	City        string
	Region      string
	Timezone    string
	Provider    string
}

// geoResponse covers both the ipapi.co and ipinfo.io shapes: ipapi sends
// country_code and country_name, ipinfo only sends the code in country.
type geoResponse struct {
	IP          string `json:"ip"`
	CountryCode string `json:"country_code"`
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Timezone    string `json:"timezone"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

var ErrNoCountry = errors.New("geolocation response has no country code")

// GeolocationClient queries IP geolocation providers in order and returns
// the first usable answer. Provider URLs are templates where {ip} is
// replaced by the address being looked up.
type GeolocationClient struct {
	http      *http.Client
	providers []string
}

func NewGeolocationClient(providers []string, timeout time.Duration) *GeolocationClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GeolocationClient{
		http:      &http.Client{Timeout: timeout},
		providers: providers,
	}
}

func (c *GeolocationClient) Lookup(ctx context.Context, ip string) (GeoRecord, error) {
	if len(c.providers) == 0 {
		return GeoRecord{}, errors.New("no geolocation providers configured")
	}

	var errs []error
	for _, tmpl := range c.providers {
		rec, err := c.lookupOne(ctx, tmpl, ip)
		if err == nil {
			return rec, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return GeoRecord{}, errors.Join(errs...)
}

func providerURL(tmpl, ip string) string {
	if ip == "" {
		return strings.Replace(tmpl, "{ip}/", "", 1)
	}
	return strings.Replace(tmpl, "{ip}", ip, 1)
}

func (c *GeolocationClient) lookupOne(ctx context.Context, tmpl, ip string) (GeoRecord, error) {
	url := providerURL(tmpl, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return GeoRecord{}, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return GeoRecord{}, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return GeoRecord{}, fmt.Errorf("%s answered %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GeoRecord{}, fmt.Errorf("decode %s: %w", url, err)
	}
	if out.Error {
		return GeoRecord{}, fmt.Errorf("%s: %s", url, out.Reason)
	}

	code := out.CountryCode
	if code == "" {
		code = out.Country
	}
	if strings.TrimSpace(code) == "" {
		return GeoRecord{}, fmt.Errorf("%s: %w", url, ErrNoCountry)
	}

	return GeoRecord{
		IP:          out.IP,
		CountryCode: strings.ToLower(strings.TrimSpace(code)),
		CountryName: out.CountryName,
		City:        out.City,
		Region:      out.Region,
		Timezone:    out.Timezone,
		Provider:    req.URL.Host,
	}, nil
}
