package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeolocationClient_FirstProviderWins(t *testing.T) {
	var gotAccept, gotCache, gotPath string
	ipapi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotCache = r.Header.Get("Cache-Control")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"41.58.1.1","country_code":"NG","country_name":"Nigeria","city":"Abuja","region":"FCT","timezone":"Africa/Lagos"}`))
	}))
	defer ipapi.Close()

	secondCalled := false
	ipinfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondCalled = true
	}))
	defer ipinfo.Close()

	c := NewGeolocationClient([]string{ipapi.URL + "/{ip}/json/", ipinfo.URL + "/{ip}/json"}, time.Second)
	rec, err := c.Lookup(context.Background(), "41.58.1.1")
	require.NoError(t, err)

	assert.Equal(t, "ng", rec.CountryCode)
	assert.Equal(t, "Nigeria", rec.CountryName)
	assert.Equal(t, "Abuja", rec.City)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "no-cache", gotCache)
	assert.Equal(t, "/41.58.1.1/json/", gotPath)
	assert.False(t, secondCalled)
}

func TestGeolocationClient_FallsThroughToSecondProvider(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer broken.Close()

	ipinfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"102.1.1.1","country":"KE","city":"Nairobi"}`))
	}))
	defer ipinfo.Close()

	c := NewGeolocationClient([]string{broken.URL + "/{ip}/json/", ipinfo.URL + "/{ip}/json"}, time.Second)
	rec, err := c.Lookup(context.Background(), "102.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "ke", rec.CountryCode)
	assert.Equal(t, "Nairobi", rec.City)
}

func TestGeolocationClient_AllProvidersFail(t *testing.T) {
	noCountry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"127.0.0.1","bogon":true}`))
	}))
	defer noCountry.Close()

	errored := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
	}))
	defer errored.Close()

	c := NewGeolocationClient([]string{noCountry.URL + "/{ip}/json/", errored.URL + "/{ip}/json/"}, time.Second)
	_, err := c.Lookup(context.Background(), "127.0.0.1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCountry)
	assert.Contains(t, err.Error(), "RateLimited")
}

func TestProviderURL(t *testing.T) {
	assert.Equal(t, "https://ipapi.co/json/", providerURL("https://ipapi.co/{ip}/json/", ""))
	assert.Equal(t, "https://ipinfo.io/8.8.8.8/json", providerURL("https://ipinfo.io/{ip}/json", "8.8.8.8"))
}
