package spatial

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"orgfinder/internal/model"
)

// Geocoder resolves a free-text place description to coordinates.
// A nil result with a nil error means the provider found nothing.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*model.Coordinates, error)
}

// Source names where a coordinate lookup was answered from
type Source string

const (
	SourceNone      Source = "none"
	SourceCache     Source = "cache"
	SourceGazetteer Source = "gazetteer"
	SourceProvider  Source = "provider"
	SourceCaller    Source = "caller"
	SourceDefault   Source = "default"
)

// Options configures a Resolver
type Options struct {
	Gazetteer         Gazetteer
	ProximityTerms    []ProximityTerm
	DefaultThreshold  float64
	ExpandedThreshold float64
	DefaultLocation   *model.Coordinates
	Locality          string // appended to provider queries, e.g. ", Philadelphia, PA"
	CacheSize         int
}

// Resolver turns query text into a spatial context. One instance is owned by
// one session so the geocode cache is session scoped.
type Resolver struct {
	gazetteer         Gazetteer
	proximity         []ProximityTerm
	defaultThreshold  float64
	expandedThreshold float64
	defaultLocation   *model.Coordinates
	locality          string
	geocoder          Geocoder
	logger            *zap.Logger

	mu        sync.Mutex
	cache     map[string]*model.Coordinates
	cacheKeys []string
	cacheSize int
}

// NewResolver creates a new spatial resolver. geocoder may be nil, in which
// case only the gazetteer answers.
func NewResolver(opts Options, geocoder Geocoder, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Gazetteer == nil {
		opts.Gazetteer = DefaultGazetteer
	}
	if opts.ProximityTerms == nil {
		opts.ProximityTerms = DefaultProximityTerms
	}
	if opts.DefaultThreshold <= 0 {
		opts.DefaultThreshold = defaultMiles
	}
	if opts.ExpandedThreshold <= 0 {
		opts.ExpandedThreshold = expandedMiles
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	return &Resolver{
		gazetteer:         opts.Gazetteer,
		proximity:         opts.ProximityTerms,
		defaultThreshold:  opts.DefaultThreshold,
		expandedThreshold: opts.ExpandedThreshold,
		defaultLocation:   opts.DefaultLocation,
		locality:          opts.Locality,
		geocoder:          geocoder,
		logger:            logger.With(zap.String("component", "spatial")),
		cache:             make(map[string]*model.Coordinates),
		cacheSize:         opts.CacheSize,
	}
}

// DefaultThreshold returns the configured default radius in miles
func (r *Resolver) DefaultThreshold() float64 { return r.defaultThreshold }

// ExpandedThreshold returns the radius used by the expansion retry
func (r *Resolver) ExpandedThreshold() float64 { return r.expandedThreshold }

func (r *Resolver) cached(phrase string) (*model.Coordinates, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[phrase]
	return c, ok
}

func (r *Resolver) store(phrase string, c *model.Coordinates) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[phrase]; !ok {
		r.cacheKeys = append(r.cacheKeys, phrase)
	}
	r.cache[phrase] = c
	for len(r.cacheKeys) > r.cacheSize {
		oldest := r.cacheKeys[0]
		r.cacheKeys = r.cacheKeys[1:]
		delete(r.cache, oldest)
	}
}

// Geocode resolves a location phrase: cache, then gazetteer, then provider.
// Misses and provider errors are cached as misses and reported as a nil
// result. A lookup aborted by ctx is not cached.
func (r *Resolver) Geocode(ctx context.Context, phrase string) (*model.Coordinates, Source) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, SourceNone
	}

	if c, ok := r.cached(phrase); ok {
		if c == nil {
			return nil, SourceCache
		}
		out := *c
		return &out, SourceCache
	}

	if l, ok := r.gazetteer.Find(phrase); ok {
		c := l.Coordinates()
		r.store(phrase, &c)
		r.logger.Debug("Resolved landmark", zap.String("phrase", phrase), zap.String("landmark", l.Name))
		out := c
		return &out, SourceGazetteer
	}

	if r.geocoder == nil {
		r.store(phrase, nil)
		return nil, SourceNone
	}

	c, err := r.geocoder.Geocode(ctx, phrase+r.locality)
	if ctx.Err() != nil {
		r.logger.Warn("Geocoding aborted", zap.String("phrase", phrase), zap.Error(ctx.Err()))
		return nil, SourceNone
	}
	if err != nil {
		r.logger.Warn("Geocoding failed", zap.String("phrase", phrase), zap.Error(err))
		r.store(phrase, nil)
		return nil, SourceProvider
	}
	if c == nil {
		r.logger.Info("Geocoding found no match", zap.String("phrase", phrase))
		r.store(phrase, nil)
		return nil, SourceProvider
	}

	stored := *c
	r.store(phrase, &stored)
	r.logger.Debug("Geocoded phrase", zap.String("phrase", phrase), zap.String("coordinates", c.String()))
	out := *c
	return &out, SourceProvider
}

// Resolution is the full spatial reading of one query
type Resolution struct {
	IsSpatial     bool
	Rule          string
	Phrase        string
	Context       *model.SpatialContext
	Source        Source
	GeocodeFailed bool
	Duration      time.Duration
}

// Resolve detects spatial intent and builds the spatial context. It never
// fails: an unresolvable phrase yields a context without coordinates and
// GeocodeFailed set.
func (r *Resolver) Resolve(ctx context.Context, text string, caller *model.Coordinates) Resolution {
	start := time.Now()
	res := r.resolve(ctx, text, caller)
	res.Duration = time.Since(start)
	return res
}

func (r *Resolver) resolve(ctx context.Context, text string, caller *model.Coordinates) Resolution {
	if IsPersonalLocation(text) {
		coords, src, label := r.fallbackLocation(caller)
		return Resolution{
			IsSpatial: true,
			Rule:      "personal",
			Source:    src,
			Context: &model.SpatialContext{
				Coordinates:            coords,
				DistanceThresholdMiles: r.DistanceThreshold(text),
				SourceText:             label,
				Personal:               true,
			},
			GeocodeFailed: coords == nil,
		}
	}

	d := r.Detect(text)
	if !d.Spatial {
		return Resolution{Rule: d.Rule, Source: SourceNone}
	}

	threshold := r.DistanceThreshold(text)
	phrase := r.ExtractLocationPhrase(text)
	if phrase == "" {
		coords, src, label := r.fallbackLocation(caller)
		return Resolution{
			IsSpatial: true,
			Rule:      d.Rule,
			Source:    src,
			Context: &model.SpatialContext{
				Coordinates:            coords,
				DistanceThresholdMiles: threshold,
				SourceText:             label,
			},
		}
	}

	coords, src := r.Geocode(ctx, phrase)
	return Resolution{
		IsSpatial: true,
		Rule:      d.Rule,
		Phrase:    phrase,
		Source:    src,
		Context: &model.SpatialContext{
			Coordinates:            coords,
			DistanceThresholdMiles: threshold,
			SourceText:             phrase,
		},
		GeocodeFailed: coords == nil,
	}
}

// Origin returns the caller coordinates, or the configured default location
// when the caller sent none
func (r *Resolver) Origin(caller *model.Coordinates) *model.Coordinates {
	c, _, _ := r.fallbackLocation(caller)
	return c
}

func (r *Resolver) fallbackLocation(caller *model.Coordinates) (*model.Coordinates, Source, string) {
	if caller != nil {
		c := *caller
		return &c, SourceCaller, "user location"
	}
	if r.defaultLocation != nil {
		c := *r.defaultLocation
		return &c, SourceDefault, "default location"
	}
	return nil, SourceNone, ""
}
