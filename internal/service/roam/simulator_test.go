package roam

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus"

	"geochat/internal/domain/geo"
	"geochat/internal/domain/item"
	"geochat/internal/domain/world"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type memStateStore struct {
	mu    sync.Mutex
	state *State
}

func (s *memStateStore) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *memStateStore) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

type memInventory struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (i *memInventory) Increment(_ context.Context, userID, kind string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	if i.counts == nil {
		i.counts = make(map[string]int)
	}
	i.counts[userID+"/"+kind]++
	return nil
}

var userPos = geo.Point{Lat: 37.7749, Lng: -122.4194}

type simFixture struct {
	sim   *Simulator
	state *memStateStore
	inv   *memInventory
	pos   *geo.Point
	zones []world.Zone
	mu    sync.Mutex
}

func (f *simFixture) position() *geo.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *simFixture) setPosition(p *geo.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = p
}

func (f *simFixture) zoneList() []world.Zone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zones
}

func newFixture(t *testing.T, seed int64) *simFixture {
	t.Helper()
	f := &simFixture{
		state: &memStateStore{},
		inv:   &memInventory{},
	}
	p := userPos
	f.pos = &p

	sim, err := NewSimulator(
		DefaultConfig(),
		item.DefaultTable(),
		f.zoneList,
		f.position,
		f.state,
		f.inv,
		rand.New(rand.NewSource(seed)),
		testLog(),
	)
	if err != nil {
		t.Fatalf("NewSimulator failed: %v", err)
	}
	f.sim = sim
	return f
}

func TestSpawnInAnnulus(t *testing.T) {
	f := newFixture(t, 1)
	now := time.Now()

	f.sim.spawnTick(now)

	items := f.sim.Items()
	if len(items) != 1 {
		t.Fatal("expected a spawned item")
	}
	it := items[0]

	dist := geo.DistanceMeters(userPos, it.Position)
	if dist < 80 || dist > 200 {
		t.Fatalf("spawn distance %v outside annulus", dist)
	}
	testutil.AssertEqual(t, "despawn deadline", it.DespawnAt, now.Add(15*time.Minute))
	if it.Kind == "" || it.Rarity == "" {
		t.Fatalf("incomplete item: %+v", it)
	}
}

func TestSpawnPersistsState(t *testing.T) {
	f := newFixture(t, 1)
	f.sim.spawnTick(time.Now())

	state, _ := f.state.Load()
	if state == nil || state.ActiveItem == nil {
		t.Fatal("spawn not persisted")
	}
	testutil.AssertEqual(t, "persisted id", state.ActiveItem.ID, f.sim.Items()[0].ID)
}

func TestSpawnAvoidsZones(t *testing.T) {
	f := newFixture(t, 1)
	// One zone covering the whole annulus: no candidate is safe.
	f.zones = []world.Zone{{
		ID:           "z1",
		Center:       userPos,
		RadiusMeters: 1000,
	}}

	f.sim.spawnTick(time.Now())
	testutil.AssertEqual(t, "no spawn inside zone", len(f.sim.Items()), 0)
}

func TestSpawnNeedsPosition(t *testing.T) {
	f := newFixture(t, 1)
	f.setPosition(nil)

	f.sim.spawnTick(time.Now())
	testutil.AssertEqual(t, "no spawn without fix", len(f.sim.Items()), 0)
}

func TestDespawnStartsCooldown(t *testing.T) {
	f := newFixture(t, 1)
	now := time.Now()
	f.sim.spawnTick(now)

	expiredAt := now.Add(16 * time.Minute)
	f.sim.spawnTick(expiredAt)

	testutil.AssertEqual(t, "despawned", len(f.sim.Items()), 0)

	next := f.sim.nextSpawnAt
	if next.Before(expiredAt.Add(time.Minute)) || next.After(expiredAt.Add(2*time.Minute)) {
		t.Fatalf("cooldown %v outside 60-120s window", next.Sub(expiredAt))
	}

	// Still inside the cooldown: no respawn.
	f.sim.spawnTick(expiredAt.Add(30 * time.Second))
	testutil.AssertEqual(t, "cooldown holds", len(f.sim.Items()), 0)

	// Past the cooldown: a new item appears.
	f.sim.spawnTick(expiredAt.Add(3 * time.Minute))
	testutil.AssertEqual(t, "respawned", len(f.sim.Items()), 1)
}

func TestCollect(t *testing.T) {
	f := newFixture(t, 1)
	f.sim.spawnTick(time.Now())
	spawned := f.sim.Items()[0]

	// Walk to the item.
	p := spawned.Position
	f.setPosition(&p)

	collected, err := f.sim.Collect(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	testutil.AssertEqual(t, "collected id", collected.ID, spawned.ID)
	testutil.AssertEqual(t, "inventory", f.inv.counts["alice/"+spawned.Kind], 1)
	testutil.AssertEqual(t, "item gone", len(f.sim.Items()), 0)
}

// Two racing collect attempts: exactly one succeeds, the other observes
// the item already destroyed.
func TestCollectSingleSuccess(t *testing.T) {
	f := newFixture(t, 1)
	f.sim.spawnTick(time.Now())
	p := f.sim.Items()[0].Position
	f.setPosition(&p)

	if _, err := f.sim.Collect(context.Background(), "alice"); err != nil {
		t.Fatalf("first collect failed: %v", err)
	}
	_, err := f.sim.Collect(context.Background(), "alice")
	if !errors.Is(err, ErrNoItem) {
		t.Fatalf("expected ErrNoItem, got %v", err)
	}
}

func TestCollectOutOfRange(t *testing.T) {
	f := newFixture(t, 1)
	f.sim.spawnTick(time.Now())
	it := f.sim.Items()[0]

	far := geo.PointAtBearing(it.Position, 200, 0)
	f.setPosition(&far)

	_, err := f.sim.Collect(context.Background(), "alice")
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	testutil.AssertEqual(t, "item survives", len(f.sim.Items()), 1)
}

func TestCollectSurfacesInventoryError(t *testing.T) {
	f := newFixture(t, 1)
	f.inv.err = errors.New("db down")
	f.sim.spawnTick(time.Now())
	p := f.sim.Items()[0].Position
	f.setPosition(&p)

	if _, err := f.sim.Collect(context.Background(), "alice"); err == nil {
		t.Fatal("expected inventory error to surface")
	}
}

func TestCollectibleRespectsRadius(t *testing.T) {
	f := newFixture(t, 1)
	f.sim.spawnTick(time.Now())
	it := f.sim.Items()[0]

	near := geo.PointAtBearing(it.Position, 50, 0)
	f.setPosition(&near)
	if f.sim.Collectible() == nil {
		t.Fatal("expected collectible within 75m")
	}

	far := geo.PointAtBearing(it.Position, 120, 0)
	f.setPosition(&far)
	if f.sim.Collectible() != nil {
		t.Fatal("expected no collectible beyond 75m")
	}
}

// The pushed frame carries both the entity list and the in-range
// collectible, so the UI never has to re-derive the collect radius.
func TestSnapshotCarriesCollectible(t *testing.T) {
	f := newFixture(t, 1)
	f.sim.spawnTick(time.Now())
	it := f.sim.Items()[0]

	near := geo.PointAtBearing(it.Position, 50, 0)
	f.setPosition(&near)
	snap := f.sim.Snapshot()
	testutil.AssertEqual(t, "items", len(snap.Items), 1)
	if snap.Collectible == nil {
		t.Fatal("expected a collectible within 75m")
	}
	testutil.AssertEqual(t, "collectible id", snap.Collectible.ID, it.ID)

	far := geo.PointAtBearing(it.Position, 120, 0)
	f.setPosition(&far)
	snap = f.sim.Snapshot()
	testutil.AssertEqual(t, "items out of range", len(snap.Items), 1)
	if snap.Collectible != nil {
		t.Fatal("expected no collectible beyond 75m")
	}
}

func TestMoveTickInterpolates(t *testing.T) {
	f := newFixture(t, 1)
	now := time.Now()
	f.sim.spawnTick(now)

	// Force a move decision.
	f.sim.moveTick(now.Add(6 * time.Second))

	f.sim.mu.Lock()
	motion := f.sim.active.Motion
	f.sim.mu.Unlock()
	if !motion.Moving {
		t.Fatal("expected item to start moving")
	}

	dist := geo.DistanceMeters(motion.From, motion.To)
	if dist < 55 || dist > 160 {
		t.Fatalf("move distance %v outside band", dist)
	}

	// Halfway through the leg the position sits between the endpoints.
	f.sim.moveTick(motion.StartedAt.Add(motion.Duration / 2))
	mid := f.sim.Items()[0].Position
	toMid := geo.DistanceMeters(motion.From, mid)
	if toMid < dist*0.3 || toMid > dist*0.7 {
		t.Fatalf("midpoint %v not between endpoints (leg %v)", toMid, dist)
	}

	// Past the full duration the item parks at the target.
	f.sim.moveTick(motion.StartedAt.Add(motion.Duration + time.Second))
	parked := f.sim.Items()[0]
	testutil.AssertEqual(t, "parked at target", parked.Position, motion.To)
	testutil.AssertEqual(t, "no longer moving", parked.Motion.Moving, false)
}

func TestMoveTickParksWhenBlocked(t *testing.T) {
	f := newFixture(t, 1)
	now := time.Now()
	f.sim.spawnTick(now)
	start := f.sim.Items()[0].Position

	// Surround the item after spawning so every target is forbidden.
	f.mu.Lock()
	f.zones = []world.Zone{{ID: "z1", Center: start, RadiusMeters: 5000}}
	f.mu.Unlock()

	f.sim.moveTick(now.Add(6 * time.Second))

	it := f.sim.Items()[0]
	testutil.AssertEqual(t, "stays parked", it.Motion.Moving, false)
	testutil.AssertEqual(t, "position held", it.Position, start)
}

func TestRestoreActiveItem(t *testing.T) {
	future := time.Now().Add(10 * time.Minute)
	stored := &State{
		ActiveItem: &item.RoamingItem{
			ID:        "saved",
			Kind:      "🦊",
			Rarity:    item.RarityCommon,
			Position:  geo.PointAtBearing(userPos, 100, 1),
			DespawnAt: future,
		},
	}

	f := &simFixture{state: &memStateStore{state: stored}, inv: &memInventory{}}
	p := userPos
	f.pos = &p

	sim, err := NewSimulator(DefaultConfig(), item.DefaultTable(), f.zoneList, f.position,
		f.state, f.inv, rand.New(rand.NewSource(1)), testLog())
	if err != nil {
		t.Fatalf("NewSimulator failed: %v", err)
	}

	items := sim.Items()
	if len(items) != 1 || items[0].ID != "saved" {
		t.Fatalf("expected restored item, got %v", items)
	}
}

func TestRestoreSkipsExpiredItem(t *testing.T) {
	stored := &State{
		ActiveItem: &item.RoamingItem{
			ID:        "stale",
			DespawnAt: time.Now().Add(-time.Minute),
		},
	}

	f := &simFixture{state: &memStateStore{state: stored}, inv: &memInventory{}}
	p := userPos
	f.pos = &p

	sim, err := NewSimulator(DefaultConfig(), item.DefaultTable(), f.zoneList, f.position,
		f.state, f.inv, rand.New(rand.NewSource(1)), testLog())
	if err != nil {
		t.Fatalf("NewSimulator failed: %v", err)
	}

	testutil.AssertEqual(t, "expired item dropped", len(sim.Items()), 0)
}
