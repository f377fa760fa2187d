// Package surface holds the static geometry of the display surfaces gaze is
// mapped onto. Surfaces are registered once at startup and are read-only
// once the registry is sealed.
package surface

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"gazemap-go/internal/types"
)

var uidCounter atomic.Uint64

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Surface is one physical display. Marker corners are in the surface's own
// pixel space, clockwise starting top-left.
type Surface struct {
	UID     uint64                 `json:"uid"`
	Name    string                 `json:"name"`
	Size    Size                   `json:"size"`
	Markers map[int][4]types.Point `json:"markers"`
}

// MarkerIDs returns the surface's marker ids in ascending order.
func (s Surface) MarkerIDs() []int {
	ids := make([]int, 0, len(s.Markers))
	for id := range s.Markers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type Handle struct {
	uid  uint64
	name string
}

func (h Handle) UID() uint64  { return h.uid }
func (h Handle) Name() string { return h.name }

type ConfigurationError struct {
	Surface string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Surface == "" {
		return "surface configuration: " + e.Reason
	}
	return fmt.Sprintf("surface %q configuration: %s", e.Surface, e.Reason)
}

type Registry struct {
	mu          sync.RWMutex
	surfaces    []Surface
	byUID       map[uint64]int
	byName      map[string]uint64
	markerOwner map[int]string
	sealed      bool
}

func NewRegistry() *Registry {
	return &Registry{
		byUID:       make(map[uint64]int),
		byName:      make(map[string]uint64),
		markerOwner: make(map[int]string),
	}
}

// Register validates and adds a surface. The registry is left untouched when
// an error is returned.
func (r *Registry) Register(name string, markers map[int][]types.Point, size Size) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return Handle{}, &ConfigurationError{Surface: name, Reason: "registry is sealed"}
	}
	if name == "" {
		return Handle{}, &ConfigurationError{Reason: "surface name is empty"}
	}
	if _, ok := r.byName[name]; ok {
		return Handle{}, &ConfigurationError{Surface: name, Reason: "name already registered"}
	}
	if !(size.Width > 0) || !(size.Height > 0) {
		return Handle{}, &ConfigurationError{
			Surface: name,
			Reason:  fmt.Sprintf("pixel size must be positive, got %vx%v", size.Width, size.Height),
		}
	}
	if len(markers) == 0 {
		return Handle{}, &ConfigurationError{Surface: name, Reason: "no markers"}
	}

	corners := make(map[int][4]types.Point, len(markers))
	for id, points := range markers {
		if owner, ok := r.markerOwner[id]; ok {
			return Handle{}, &ConfigurationError{
				Surface: name,
				Reason:  fmt.Sprintf("marker %d already registered to surface %q", id, owner),
			}
		}
		if len(points) != 4 {
			return Handle{}, &ConfigurationError{
				Surface: name,
				Reason:  fmt.Sprintf("marker %d has %d corners, want 4", id, len(points)),
			}
		}
		corners[id] = [4]types.Point{points[0], points[1], points[2], points[3]}
	}

	uid := uidCounter.Add(1)
	for id := range corners {
		r.markerOwner[id] = name
	}
	r.byUID[uid] = len(r.surfaces)
	r.byName[name] = uid
	r.surfaces = append(r.surfaces, Surface{
		UID:     uid,
		Name:    name,
		Size:    size,
		Markers: corners,
	})
	return Handle{uid: uid, name: name}, nil
}

// Seal freezes the registry. Further Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

func (r *Registry) Name(uid uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byUID[uid]
	if !ok {
		return "", false
	}
	return r.surfaces[idx].Name, true
}

// Surfaces returns the registered surfaces in registration order. The slice
// is a copy; the marker maps are shared and must not be modified.
func (r *Registry) Surfaces() []Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Surface, len(r.surfaces))
	copy(out, r.surfaces)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}
