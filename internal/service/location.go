package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"thinqscribe-payments/internal/clients"
	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (clients.GeoRecord, error)
}

// JSONCache is the slice of the Redis client the services rely on.
type JSONCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dst any) error
}

type countryInfo struct {
	name     string
	currency string
	rate     float64
}

// countries maps ISO codes to the local currency and its rate against USD.
// Nigeria's rate is taken from the policy instead.
var countries = map[string]countryInfo{
	"ng": {name: "Nigeria", currency: "ngn"},
	"gh": {name: "Ghana", currency: "ghs", rate: 15},
	"ke": {name: "Kenya", currency: "kes", rate: 130},
	"za": {name: "South Africa", currency: "zar", rate: 18},
	"tz": {name: "Tanzania", currency: "tzs", rate: 2600},
	"ug": {name: "Uganda", currency: "ugx", rate: 3700},
	"rw": {name: "Rwanda", currency: "rwf", rate: 1350},
	"et": {name: "Ethiopia", currency: "etb", rate: 120},
	"ma": {name: "Morocco", currency: "mad", rate: 10},
	"eg": {name: "Egypt", currency: "egp", rate: 48},
	"us": {name: "United States", currency: "usd", rate: 1},
	"gb": {name: "United Kingdom", currency: "gbp", rate: 0.79},
	"ca": {name: "Canada", currency: "cad", rate: 1.36},
	"au": {name: "Australia", currency: "aud", rate: 1.52},
	"in": {name: "India", currency: "inr", rate: 83},
	"de": {name: "Germany", currency: "eur", rate: 0.92},
	"fr": {name: "France", currency: "eur", rate: 0.92},
	"es": {name: "Spain", currency: "eur", rate: 0.92},
	"it": {name: "Italy", currency: "eur", rate: 0.92},
	"nl": {name: "Netherlands", currency: "eur", rate: 0.92},
	"ie": {name: "Ireland", currency: "eur", rate: 0.92},
}

var africanCountries = set("ng", "ke", "za", "gh", "tz", "ug", "rw", "et", "ma", "eg")

// Flag renders a two-letter country code as its regional indicator emoji.
func Flag(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return ""
	}
	var b strings.Builder
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + r - 'A')
	}
	return b.String()
}

// BuildLocation turns a provider answer into a Location. Unknown countries
// keep their code and name but price in USD.
func BuildLocation(rec clients.GeoRecord, usdToNgn float64) domain.Location {
	code := strings.ToLower(strings.TrimSpace(rec.CountryCode))
	info, known := countries[code]
	if !known {
		info = countryInfo{name: rec.CountryName, currency: currency.USD, rate: 1}
	}
	if code == "ng" {
		info.rate = usdToNgn
	}

	name := rec.CountryName
	if name == "" {
		name = info.name
	}
	if name == "" {
		name = strings.ToUpper(code)
	}

	african := africanCountries[code]
	gw := domain.GatewayStripe
	if african {
		gw = domain.GatewayPaystack
	}

	display := name
	if rec.City != "" {
		display = rec.City + ", " + name
	}

	return domain.Location{
		Country:            name,
		CountryCode:        code,
		Currency:           info.currency,
		Symbol:             currency.Symbol(info.currency),
		ExchangeRate:       info.rate,
		City:               rec.City,
		Timezone:           rec.Timezone,
		IsAfrican:          african,
		RecommendedGateway: gw,
		DisplayName:        display,
		Flag:               Flag(code),
	}
}

// FallbackLocation is used whenever detection fails.
func FallbackLocation(usdToNgn float64) domain.Location {
	if usdToNgn <= 0 {
		usdToNgn = domain.DefaultPolicy().UsdToNgnRate
	}
	return BuildLocation(clients.GeoRecord{
		CountryCode: "ng",
		CountryName: "Nigeria",
		City:        "Lagos",
		Timezone:    "Africa/Lagos",
	}, usdToNgn)
}

type LocationService struct {
	geo    GeoLookup
	cache  JSONCache
	ttl    time.Duration
	policy domain.Policy
	log    *zap.Logger
}

func NewLocationService(geo GeoLookup, cache JSONCache, ttl time.Duration, policy domain.Policy, log *zap.Logger) *LocationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocationService{geo: geo, cache: cache, ttl: ttl, policy: policy, log: log}
}

func locationCacheKey(ip string) string {
	return "location:" + ip
}

// Detect resolves the caller's location. It never fails: when every
// provider errors the fallback location is returned and the failure is
// only logged. Fallback answers are not cached.
func (s *LocationService) Detect(ctx context.Context, ip string) domain.Location {
	if s.cache != nil && ip != "" {
		var cached domain.Location
		if err := s.cache.GetJSON(ctx, locationCacheKey(ip), &cached); err == nil && cached.CountryCode != "" {
			return cached
		}
	}

	if s.geo == nil {
		return FallbackLocation(s.policy.UsdToNgnRate)
	}

	rec, err := s.geo.Lookup(ctx, ip)
	if err != nil {
		s.log.Warn("location detection failed, using fallback", zap.String("ip", ip), zap.Error(err))
		return FallbackLocation(s.policy.UsdToNgnRate)
	}

	loc := BuildLocation(rec, s.policy.UsdToNgnRate)
	if s.cache != nil && ip != "" && s.ttl > 0 {
		if err := s.cache.SetJSON(ctx, locationCacheKey(ip), loc, s.ttl); err != nil {
			s.log.Debug("location cache write failed", zap.Error(err))
		}
	}
	return loc
}

// viewerClock returns the location's time zone, or the server's when the
// zone is unknown.
func viewerClock(loc *domain.Location) *time.Location {
	if loc == nil || loc.Timezone == "" {
		return time.Local
	}
	tz, err := time.LoadLocation(loc.Timezone)
	if err != nil {
		return time.Local
	}
	return tz
}
