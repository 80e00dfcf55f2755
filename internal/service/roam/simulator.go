package roam

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"geochat/internal/domain/geo"
	"geochat/internal/domain/item"
	"geochat/internal/domain/world"
)

var (
	// ErrNoItem is returned by Collect when no entity is active. A second
	// collection attempt for the same entity observes this: the first
	// attempt destroyed it.
	ErrNoItem = errors.New("no collectible item")

	// ErrOutOfRange is returned by Collect when the user is too far away.
	ErrOutOfRange = errors.New("item out of collect range")

	// ErrNoPosition is returned by Collect when no position fix exists.
	ErrNoPosition = errors.New("no position fix")
)

// Config contains the simulator's spawn, movement, and collection tuning.
// All values are data, not code, so tests can pin them down.
type Config struct {
	SpawnTick time.Duration
	MoveTick  time.Duration

	SpawnMinDistMeters float64
	SpawnMaxDistMeters float64
	SpawnAttempts      int
	ZoneMarginMeters   float64

	DespawnAfter   time.Duration
	MinCooldown    time.Duration
	MaxCooldownAdd time.Duration

	FirstMoveDelay    time.Duration
	IdlePauseMin      time.Duration
	IdlePauseMax      time.Duration
	RetryDelay        time.Duration
	MoveDistMinMeters float64
	MoveDistMaxMeters float64
	SpeedMetersPerSec float64
	BearingJitterRad  float64

	CollectRadiusMeters float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		SpawnTick:           5 * time.Second,
		MoveTick:            100 * time.Millisecond,
		SpawnMinDistMeters:  80,
		SpawnMaxDistMeters:  200,
		SpawnAttempts:       5,
		ZoneMarginMeters:    10,
		DespawnAfter:        15 * time.Minute,
		MinCooldown:         time.Minute,
		MaxCooldownAdd:      time.Minute,
		FirstMoveDelay:      5 * time.Second,
		IdlePauseMin:        10 * time.Second,
		IdlePauseMax:        30 * time.Second,
		RetryDelay:          5 * time.Second,
		MoveDistMinMeters:   60,
		MoveDistMaxMeters:   150,
		SpeedMetersPerSec:   2.5,
		BearingJitterRad:    0.3,
		CollectRadiusMeters: 75,
	}
}

// State is the simulator snapshot mirrored to the local cache so an active
// item survives a process restart.
type State struct {
	ActiveItem  *item.RoamingItem `json:"active_item,omitempty"`
	NextSpawnAt time.Time         `json:"next_spawn_at,omitempty"`
}

// StateStore is the injected persistence port: load-on-start, save-on-mutate.
// Failures are best effort and never fail the simulation.
type StateStore interface {
	Load() (*State, error)
	Save(*State) error
}

// Inventory issues the durable reward increment on a successful collect.
type Inventory interface {
	Increment(ctx context.Context, userID, kind string) error
}

// Simulator runs at most one roaming collectible through the
// absent → spawning → idle → moving → despawned lifecycle. The item's
// position is mutated only by the simulator's own ticks; external callers
// read it or call Collect.
type Simulator struct {
	config   Config
	table    item.Table
	zones    func() []world.Zone
	position func() *geo.Point
	state    StateStore
	inv      Inventory
	rng      *rand.Rand
	now      func() time.Time
	log      *logrus.Entry

	mu          sync.Mutex
	active      *item.RoamingItem
	nextSpawnAt time.Time
}

// NewSimulator creates a simulator. zones supplies the forbidden circles
// (active chat zones); position supplies the live user fix, which may be
// nil. A previously persisted item whose despawn deadline is still in the
// future is restored as-is instead of respawned.
func NewSimulator(
	config Config,
	table item.Table,
	zones func() []world.Zone,
	position func() *geo.Point,
	state StateStore,
	inv Inventory,
	rng *rand.Rand,
	log *logrus.Entry,
) (*Simulator, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rarity table: %w", err)
	}

	s := &Simulator{
		config:   config,
		table:    table,
		zones:    zones,
		position: position,
		state:    state,
		inv:      inv,
		rng:      rng,
		now:      time.Now,
		log:      log,
	}

	s.restore()

	return s, nil
}

// Start runs the spawn and movement ticks until ctx is cancelled.
func (s *Simulator) Start(ctx context.Context) {
	go s.runTicker(ctx, s.config.SpawnTick, s.spawnTick)
	go s.runTicker(ctx, s.config.MoveTick, s.moveTick)
}

func (s *Simulator) runTicker(ctx context.Context, every time.Duration, tick func(time.Time)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			tick(t)
		}
	}
}

// Items returns the active roaming item, if any.
func (s *Simulator) Items() []item.RoamingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return []item.RoamingItem{*s.active}
}

// Snapshot is the wire view of the simulation: the active entities plus the
// one currently within collect range, when there is one.
type Snapshot struct {
	Items       []item.RoamingItem `json:"items"`
	Collectible *item.RoamingItem  `json:"collectible,omitempty"`
}

// Snapshot returns the current wire view.
func (s *Simulator) Snapshot() Snapshot {
	return Snapshot{
		Items:       s.Items(),
		Collectible: s.Collectible(),
	}
}

// Collectible returns the active item when the user is within collect range.
func (s *Simulator) Collectible() *item.RoamingItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.position()
	if s.active == nil || pos == nil {
		return nil
	}
	if geo.DistanceMeters(*pos, s.active.Position) > s.config.CollectRadiusMeters {
		return nil
	}
	it := *s.active
	return &it
}

// Collect atomically destroys the active item and issues the durable
// inventory increment. Destroy-then-reward under one lock means two
// simultaneous attempts cannot both succeed: the second observes ErrNoItem.
func (s *Simulator) Collect(ctx context.Context, userID string) (item.RoamingItem, error) {
	s.mu.Lock()

	if s.active == nil {
		s.mu.Unlock()
		return item.RoamingItem{}, ErrNoItem
	}
	pos := s.position()
	if pos == nil {
		s.mu.Unlock()
		return item.RoamingItem{}, ErrNoPosition
	}
	if geo.DistanceMeters(*pos, s.active.Position) > s.config.CollectRadiusMeters {
		s.mu.Unlock()
		return item.RoamingItem{}, ErrOutOfRange
	}

	collected := *s.active
	s.active = nil
	now := s.now()
	s.nextSpawnAt = now.Add(s.cooldown())
	s.persistLocked()
	s.mu.Unlock()

	if err := s.inv.Increment(ctx, userID, collected.Kind); err != nil {
		return item.RoamingItem{}, fmt.Errorf("error saving collected item: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"kind":   collected.Kind,
		"rarity": collected.Rarity,
		"user":   userID,
	}).Info("item collected")

	return collected, nil
}

// spawnTick despawns an expired item or, when the cooldown has elapsed and a
// safe annulus point exists, spawns a new one.
func (s *Simulator) spawnTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if now.After(s.active.DespawnAt) {
			s.log.WithField("kind", s.active.Kind).Debug("item despawned")
			s.active = nil
			s.nextSpawnAt = now.Add(s.cooldown())
		}
		s.persistLocked()
		return
	}

	if now.Before(s.nextSpawnAt) {
		return
	}

	pos := s.position()
	if pos == nil {
		return
	}

	for attempt := 0; attempt < s.config.SpawnAttempts; attempt++ {
		dist := s.config.SpawnMinDistMeters +
			s.rng.Float64()*(s.config.SpawnMaxDistMeters-s.config.SpawnMinDistMeters)
		bearing := s.rng.Float64() * 2 * math.Pi
		candidate := geo.PointAtBearing(*pos, dist, bearing)

		if !s.safe(candidate) {
			continue
		}

		kind, rarity := s.table.Draw(s.rng)
		s.active = &item.RoamingItem{
			ID:        uuid.New().String(),
			Kind:      kind,
			Rarity:    rarity,
			Position:  candidate,
			DespawnAt: now.Add(s.config.DespawnAfter),
			Motion: item.Motion{
				From:       candidate,
				To:         candidate,
				NextMoveAt: now.Add(s.config.FirstMoveDelay),
			},
		}
		s.persistLocked()

		s.log.WithFields(logrus.Fields{
			"kind":   kind,
			"rarity": rarity,
			"dist":   int(dist),
		}).Debug("item spawned")
		return
	}
	// All candidates landed inside zones; the next tick retries.
}

// moveTick advances interpolation for a moving item or picks a new target
// for a parked one whose pause has elapsed.
func (s *Simulator) moveTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return
	}
	it := s.active

	if it.Motion.Moving {
		frac := float64(now.Sub(it.Motion.StartedAt)) / float64(it.Motion.Duration)
		if frac >= 1 {
			it.Motion.Moving = false
			it.Position = it.Motion.To
			it.Motion.NextMoveAt = now.Add(s.idlePause())
			return
		}
		if frac < 0 {
			frac = 0
		}
		it.Position = lerp(it.Motion.From, it.Motion.To, frac)
		return
	}

	if now.Before(it.Motion.NextMoveAt) {
		return
	}

	var bearing float64
	if pos := s.position(); pos != nil {
		jitter := (s.rng.Float64()*2 - 1) * s.config.BearingJitterRad
		bearing = geo.BearingRadians(it.Position, *pos) + jitter
	} else {
		bearing = s.rng.Float64() * 2 * math.Pi
	}

	dist := s.config.MoveDistMinMeters +
		s.rng.Float64()*(s.config.MoveDistMaxMeters-s.config.MoveDistMinMeters)

	target := geo.PointAtBearing(it.Position, dist, bearing)
	if !s.safe(target) {
		// One fully random retry, then stay parked until the retry delay.
		target = geo.PointAtBearing(it.Position, dist, s.rng.Float64()*2*math.Pi)
	}
	if !s.safe(target) {
		it.Motion.NextMoveAt = now.Add(s.config.RetryDelay)
		return
	}

	it.Motion = item.Motion{
		Moving:     true,
		From:       it.Position,
		To:         target,
		StartedAt:  now,
		Duration:   time.Duration(dist / s.config.SpeedMetersPerSec * float64(time.Second)),
		NextMoveAt: it.Motion.NextMoveAt,
	}
}

// safe reports whether p keeps the margin distance from every active zone.
func (s *Simulator) safe(p geo.Point) bool {
	for _, z := range s.zones() {
		if geo.DistanceMeters(p, z.Center) < z.RadiusMeters+s.config.ZoneMarginMeters {
			return false
		}
	}
	return true
}

func (s *Simulator) cooldown() time.Duration {
	return s.config.MinCooldown +
		time.Duration(s.rng.Float64()*float64(s.config.MaxCooldownAdd))
}

func (s *Simulator) idlePause() time.Duration {
	return s.config.IdlePauseMin +
		time.Duration(s.rng.Float64()*float64(s.config.IdlePauseMax-s.config.IdlePauseMin))
}

// restore reloads the persisted item if its despawn deadline has not passed.
func (s *Simulator) restore() {
	state, err := s.state.Load()
	if err != nil {
		s.log.WithError(err).Warn("error loading roam state")
		return
	}
	if state == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSpawnAt = state.NextSpawnAt
	if state.ActiveItem != nil && s.now().Before(state.ActiveItem.DespawnAt) {
		restored := *state.ActiveItem
		s.active = &restored
	}
}

// persistLocked mirrors the current state to the local cache, best effort.
func (s *Simulator) persistLocked() {
	state := &State{NextSpawnAt: s.nextSpawnAt}
	if s.active != nil {
		it := *s.active
		state.ActiveItem = &it
	}
	if err := s.state.Save(state); err != nil {
		s.log.WithError(err).Warn("error saving roam state")
	}
}

func lerp(from, to geo.Point, frac float64) geo.Point {
	return geo.Point{
		Lat: from.Lat + (to.Lat-from.Lat)*frac,
		Lng: from.Lng + (to.Lng-from.Lng)*frac,
	}
}
