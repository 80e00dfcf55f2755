package nearby

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"geochat/internal/domain/geo"
	"geochat/internal/livequery"
)

// Source describes one geo-indexed collection served by the service.
type Source struct {
	// Name keys the source in results and update callbacks.
	Name string

	// Subject is the change-feed subject for the collection.
	Subject string

	RadiusMeters float64

	// Lifetime is the implicit TTL for documents without an explicit expiry.
	Lifetime time.Duration

	Querier livequery.RangeQuerier
}

// Config contains configuration for the nearby service.
type Config struct {
	// RecenterThresholdMeters is how far the user must travel before the
	// query center snaps to the current position and all covering-range
	// subscriptions are re-established.
	RecenterThresholdMeters float64
}

// Service turns a moving position into live, radius-filtered views of the
// configured sources. The query center lags the true position by at most the
// recenter threshold; callers tolerate that staleness window in exchange for
// subscription churn bounded by distance traveled rather than update rate.
type Service struct {
	feed   livequery.ChangeFeed
	config Config
	log    *logrus.Entry

	mu          sync.Mutex
	sources     map[string]*sourceState
	position    *geo.Point
	queryCenter *geo.Point
	onUpdate    func(name string, docs []livequery.Document)
	closed      bool
}

type sourceState struct {
	source  Source
	view    *livequery.View
	results []livequery.Document
}

// NewService creates a nearby service over the given sources. No
// subscriptions exist until the first position arrives.
func NewService(feed livequery.ChangeFeed, sources []Source, config Config, log *logrus.Entry) *Service {
	s := &Service{
		feed:    feed,
		config:  config,
		log:     log,
		sources: make(map[string]*sourceState, len(sources)),
	}
	for _, src := range sources {
		s.sources[src.Name] = &sourceState{source: src}
	}
	return s
}

// OnUpdate registers the callback invoked with the merged view of a source
// whenever it changes. Must be called before the first SetPosition.
func (s *Service) OnUpdate(fn func(name string, docs []livequery.Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// SetPosition feeds the latest position fix into the throttle. A nil
// position (degraded GPS) tears the views down and publishes empty results
// rather than erroring. Recentering happens only when displacement from the
// current query center reaches the threshold.
func (s *Service) SetPosition(pos *geo.Point) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.position = pos

	if pos == nil {
		s.queryCenter = nil
		views := s.takeViewsLocked()
		for _, st := range s.sources {
			st.results = nil
		}
		names := s.sourceNamesLocked()
		fn := s.onUpdate
		s.mu.Unlock()

		closeAll(views)
		if fn != nil {
			for _, name := range names {
				fn(name, nil)
			}
		}
		return
	}

	if s.queryCenter != nil &&
		geo.DistanceMeters(*pos, *s.queryCenter) < s.config.RecenterThresholdMeters {
		s.mu.Unlock()
		return
	}

	center := *pos
	s.queryCenter = &center
	views := s.takeViewsLocked()
	s.mu.Unlock()

	// Stale subscriptions must be gone before new ones exist, or their
	// late snapshots would race the replacement views.
	closeAll(views)
	s.openViews(center)
}

// Position returns the latest raw position fix.
func (s *Service) Position() *geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// QueryCenter returns the center the live views are anchored to. It lags
// Position by at most the recenter threshold.
func (s *Service) QueryCenter() *geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCenter
}

// Results returns the current merged view for a source.
func (s *Service) Results(name string) []livequery.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sources[name]; ok {
		return st.results
	}
	return nil
}

// SetSourceRadius changes a source's query radius and re-anchors its view at
// the current query center.
func (s *Service) SetSourceRadius(name string, radiusMeters float64) {
	s.mu.Lock()
	st, ok := s.sources[name]
	if !ok || st.source.RadiusMeters == radiusMeters {
		s.mu.Unlock()
		return
	}
	st.source.RadiusMeters = radiusMeters
	view := st.view
	st.view = nil
	center := s.queryCenter
	s.mu.Unlock()

	if view != nil {
		view.Close()
	}
	if center != nil {
		s.openView(name, *center)
	}
}

// Close tears down every live subscription.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	views := s.takeViewsLocked()
	s.mu.Unlock()
	closeAll(views)
}

func (s *Service) openViews(center geo.Point) {
	s.mu.Lock()
	names := s.sourceNamesLocked()
	s.mu.Unlock()

	for _, name := range names {
		s.openView(name, center)
	}
}

func (s *Service) openView(name string, center geo.Point) {
	s.mu.Lock()
	st, ok := s.sources[name]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	src := st.source
	s.mu.Unlock()

	view, err := livequery.OpenView(
		src.Querier,
		s.feed,
		livequery.ViewConfig{
			Subject:      src.Subject,
			Center:       center,
			RadiusMeters: src.RadiusMeters,
			Lifetime:     src.Lifetime,
		},
		func(docs []livequery.Document) {
			s.publish(name, docs)
		},
		s.log.WithField("source", name),
	)
	if err != nil {
		s.log.WithError(err).WithField("source", name).Error("error opening live view")
		return
	}

	s.mu.Lock()
	if s.closed || s.sources[name].view != nil || s.queryCenter == nil || *s.queryCenter != center {
		s.mu.Unlock()
		view.Close()
		return
	}
	s.sources[name].view = view
	s.mu.Unlock()
}

func (s *Service) publish(name string, docs []livequery.Document) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if st, ok := s.sources[name]; ok {
		st.results = docs
	}
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(name, docs)
	}
}

func (s *Service) takeViewsLocked() []*livequery.View {
	var views []*livequery.View
	for _, st := range s.sources {
		if st.view != nil {
			views = append(views, st.view)
			st.view = nil
		}
	}
	return views
}

func (s *Service) sourceNamesLocked() []string {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	return names
}

func closeAll(views []*livequery.View) {
	for _, v := range views {
		v.Close()
	}
}
