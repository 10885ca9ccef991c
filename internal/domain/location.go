package domain

// Location is the normalised result of IP geolocation. It is built once per
// detection and never mutated afterwards.
type Location struct {
	Country            string  `json:"country"`
	CountryCode        string  `json:"countryCode"`
	Currency           string  `json:"currency"`
	Symbol             string  `json:"symbol"`
	ExchangeRate       float64 `json:"exchangeRate"`
	City               string  `json:"city"`
	Timezone           string  `json:"timezone,omitempty"`
	IsAfrican          bool    `json:"isAfrican"`
	RecommendedGateway Gateway `json:"recommendedGateway"`
	DisplayName        string  `json:"displayName"`
	Flag               string  `json:"flag"`
}

func (l *Location) IsNigerian() bool {
	return l != nil && l.CountryCode == "ng"
}
