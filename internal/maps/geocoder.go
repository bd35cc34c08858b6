// Package maps wraps the Google Maps reverse-geocoding API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"
)

var (
	// ErrGeocode marks any failure to produce an address. Callers degrade to a
	// fallback label instead of failing.
	ErrGeocode  = errors.New("reverse geocoding failed")
	ErrNoResult = errors.New("no geocoding result")
)

// placeComponentOrder lists address component types from most to least specific
// as used for short place labels.
var placeComponentOrder = []string{
	"locality",
	"sublocality",
	"administrative_area_level_2",
	"administrative_area_level_1",
	"country",
}

// GeocoderConfig controls the Geocoder.
type GeocoderConfig struct {
	APIKey   string
	Language string
	CacheTTL time.Duration
}

// Geocoder reverse-geocodes coordinates through Google Maps. Results are
// memoised per ~11 m cell and calls are guarded by a circuit breaker.
type Geocoder struct {
	client   *maps.Client
	cb       *gobreaker.CircuitBreaker[string]
	cache    *cache.Cache
	language string
	log      *zap.Logger
}

// NewGeocoder creates a Geocoder. Extra client options are appended after the
// API key, which lets tests point the client at a local server.
func NewGeocoder(cfg GeocoderConfig, log *zap.Logger, opts ...maps.ClientOption) (*Geocoder, error) {
	clientOpts := append([]maps.ClientOption{maps.WithAPIKey(cfg.APIKey)}, opts...)
	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	g := &Geocoder{
		client:   client,
		cache:    cache.New(ttl, 2*ttl),
		language: cfg.Language,
		log:      log,
	}
	g.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "maps-geocode",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Cancellation and empty results say nothing about the API's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNoResult) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g, nil
}

// AddressFor returns a short place label for the coordinate.
func (g *Geocoder) AddressFor(ctx context.Context, lat, lng float64) (string, error) {
	key := cellKey(lat, lng)
	if v, ok := g.cache.Get(key); ok {
		return v.(string), nil
	}

	addr, err := g.cb.Execute(func() (string, error) {
		return g.lookup(ctx, lat, lng)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeocode, err)
	}
	g.cache.Set(key, addr, cache.DefaultExpiration)
	return addr, nil
}

func (g *Geocoder) lookup(ctx context.Context, lat, lng float64) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lng},
		Language: g.language,
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", ErrNoResult
	}
	if name := placeName(results[0]); name != "" {
		return name, nil
	}
	return "", ErrNoResult
}

func placeName(r maps.GeocodingResult) string {
	for _, want := range placeComponentOrder {
		for _, c := range r.AddressComponents {
			for _, t := range c.Types {
				if t == want && c.LongName != "" {
					return c.LongName
				}
			}
		}
	}
	return r.FormattedAddress
}

// cellKey rounds to four decimals so nearby cluster centres share a lookup.
func cellKey(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lng, 'f', 4, 64)
}

// NopGeocoder is used when no API key is configured.
type NopGeocoder struct{}

func (NopGeocoder) AddressFor(context.Context, float64, float64) (string, error) {
	return "", ErrGeocode
}
