// Package scene defines the external collaborator interfaces the engine
// consumes: a spatial query provider (walls and lighting along segments) and
// a scene inventory provider (current entities). It also ships a static
// JSON-backed implementation so the CLI and tests can compose scenarios
// without a host environment.
package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/geo"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// SpatialQuery reports wall intersections along a sight line and the
// illumination band at a point. Implementations may be backed by a live host
// scene; errors from a failing host are recovered by the integration layer.
type SpatialQuery interface {
	// WallsAlong returns every wall whose segment crosses a→b.
	WallsAlong(a, b core.Position3D) ([]core.Wall, error)
	// LightAt returns the light band at p and whether concealing terrain
	// covers the point.
	LightAt(p core.Position3D) (core.LightLevel, bool, error)
}

// Inventory enumerates the current entities on the map.
type Inventory interface {
	Entities() ([]core.Entity, error)
	Entity(id string) (core.Entity, bool)
}

// LightRegion is a rectangular illumination zone in a static scene.
type LightRegion struct {
	MinX       float64         `json:"minX"`
	MinY       float64         `json:"minY"`
	MaxX       float64         `json:"maxX"`
	MaxY       float64         `json:"maxY"`
	Level      core.LightLevel `json:"level"`
	Concealing bool            `json:"concealing,omitempty"`
}

// Static is an in-memory scene implementing both provider interfaces.
// Geometry reads are stable for the duration of one combined-state
// calculation; mutation goes through the setter methods.
type Static struct {
	mu           sync.RWMutex
	walls        []core.Wall
	entities     map[string]core.Entity
	order        []string // entity insertion order, for deterministic reports
	lightRegions []LightRegion
	defaultLight core.LightLevel
}

// file is the JSON shape of a scene document.
type file struct {
	DefaultLight core.LightLevel `json:"defaultLight"`
	Walls        []core.Wall     `json:"walls"`
	Entities     []core.Entity   `json:"entities"`
	LightRegions []LightRegion   `json:"lightRegions"`
}

// NewStatic creates an empty bright scene.
func NewStatic() *Static {
	return &Static{
		entities:     make(map[string]core.Entity),
		defaultLight: core.LightBright,
	}
}

// LoadFile reads a scene document from a JSON file.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene file: %w", err)
	}
	var doc file
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing scene file: %w", err)
	}

	s := NewStatic()
	s.defaultLight = doc.DefaultLight
	s.walls = doc.Walls
	s.lightRegions = doc.LightRegions
	for _, e := range doc.Entities {
		s.AddEntity(e)
	}
	return s, nil
}

// AddWall appends a wall to the scene.
func (s *Static) AddWall(w core.Wall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walls = append(s.walls, w)
}

// SetWalls replaces the wall set.
func (s *Static) SetWalls(walls []core.Wall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walls = walls
}

// AddEntity inserts or replaces an entity.
func (s *Static) AddEntity(e core.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[e.ID]; !exists {
		s.order = append(s.order, e.ID)
	}
	s.entities[e.ID] = e
}

// MoveEntity updates an entity's position. Unknown IDs are ignored.
func (s *Static) MoveEntity(id string, pos core.Position3D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[id]; ok {
		e.Pos = pos
		s.entities[id] = e
	}
}

// AddLightRegion appends an illumination zone.
func (s *Static) AddLightRegion(r LightRegion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lightRegions = append(s.lightRegions, r)
}

// SetDefaultLight sets the ambient band used outside all regions.
func (s *Static) SetDefaultLight(l core.LightLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultLight = l
}

// WallsAlong implements SpatialQuery. Returns walls whose segment crosses
// the line a→b, door state and direction untouched (policy belongs to the
// detector, not the provider).
func (s *Static) WallsAlong(a, b core.Position3D) ([]core.Wall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []core.Wall
	p1 := geo.XYFromPosition(a)
	p2 := geo.XYFromPosition(b)
	for _, w := range s.walls {
		q1 := geo.XYFromPosition(w.Start)
		q2 := geo.XYFromPosition(w.End)
		if _, hit := geo.SegmentIntersection(p1, p2, q1, q2); hit {
			hits = append(hits, w)
		}
	}
	return hits, nil
}

// LightAt implements SpatialQuery. The last matching region wins so scenes
// can layer darkness over a lit base.
func (s *Static) LightAt(p core.Position3D) (core.LightLevel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level := s.defaultLight
	concealing := false
	xy := geo.XYFromPosition(p)
	for _, r := range s.lightRegions {
		if geo.PointInAABB(xy, r.MinX, r.MinY, r.MaxX, r.MaxY) {
			level = r.Level
			concealing = r.Concealing
		}
	}
	return level, concealing, nil
}

// Entities implements Inventory in insertion order.
func (s *Static) Entities() ([]core.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entities[id])
	}
	return out, nil
}

// Entity implements Inventory.
func (s *Static) Entity(id string) (core.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}
