package tax

import (
	"errors"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/surveysystem/tax-api/internal/geo"
	"github.com/surveysystem/tax-api/internal/logger"
	"go.uber.org/zap"
)

// ErrIndexNotLoaded indicates a query before any zone set was installed.
var ErrIndexNotLoaded = errors.New("zone index not loaded")

// ZoneIndex answers point-containment queries over tax zone boundaries.
//
// Load installs an immutable snapshot atomically; queries in flight keep
// reading the snapshot they started with, so readers never observe a
// partially loaded state and no lock is held across a query. Candidate
// pruning uses a coarse uniform grid over zone bounding boxes before the
// exact ray-casting test, keeping queries sub-linear in zone count.
type ZoneIndex struct {
	snap   atomic.Pointer[indexSnapshot]
	logger *zap.Logger
}

type indexSnapshot struct {
	all      []*Zone // every loaded zone, ascending id
	zones    []*Zone // spatial zones only, ascending id
	grid     map[cellKey][]int32
	bbox     geo.BBox
	cellW    float64
	cellH    float64
	dim      int32
	total    int // all zones, including ones without a boundary
	loadedAt time.Time
}

type cellKey struct{ x, y int32 }

// NewZoneIndex creates an empty index. Query fails with
// ErrIndexNotLoaded until the first Load.
func NewZoneIndex() *ZoneIndex {
	return &ZoneIndex{logger: logger.Log}
}

// Load validates the zone set, builds a fresh snapshot and installs it,
// replacing any previous one. Zones without a boundary are retained for
// listing but never match spatially.
func (ix *ZoneIndex) Load(zones []Zone) error {
	all := make([]*Zone, 0, len(zones))
	spatial := make([]*Zone, 0, len(zones))
	for i := range zones {
		z := zones[i]
		if err := z.Validate(); err != nil {
			return err
		}
		all = append(all, &z)
		if z.Boundary != nil {
			spatial = append(spatial, &z)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	sort.Slice(spatial, func(i, j int) bool { return spatial[i].ID < spatial[j].ID })

	snap := &indexSnapshot{
		all:      all,
		zones:    spatial,
		grid:     make(map[cellKey][]int32),
		bbox:     geo.BBox{180, 90, -180, -90},
		total:    len(zones),
		loadedAt: time.Now(),
	}
	for _, z := range spatial {
		snap.bbox = snap.bbox.Extend(z.Boundary.BBox)
	}
	snap.dim = gridDim(len(spatial))
	snap.cellW = (snap.bbox[2] - snap.bbox[0]) / float64(snap.dim)
	snap.cellH = (snap.bbox[3] - snap.bbox[1]) / float64(snap.dim)
	for i, z := range spatial {
		x0, y0 := snap.cell(geo.Point{Lon: z.Boundary.BBox[0], Lat: z.Boundary.BBox[1]})
		x1, y1 := snap.cell(geo.Point{Lon: z.Boundary.BBox[2], Lat: z.Boundary.BBox[3]})
		for x := x0; x <= x1; x++ {
			for y := y0; y <= y1; y++ {
				k := cellKey{x, y}
				snap.grid[k] = append(snap.grid[k], int32(i))
			}
		}
	}

	ix.snap.Store(snap)
	ix.logger.Info("Zone index loaded",
		zap.Int("zones", len(zones)),
		zap.Int("spatial_zones", len(spatial)),
		zap.Int32("grid_dim", snap.dim))
	return nil
}

// Query returns every zone whose boundary contains the point, ascending
// by zone id. A point matching nothing returns an empty slice, not an
// error; malformed points and an unloaded index do error.
func (ix *ZoneIndex) Query(pt geo.Point) ([]*Zone, error) {
	if err := pt.Validate(); err != nil {
		return nil, err
	}
	snap := ix.snap.Load()
	if snap == nil {
		return nil, ErrIndexNotLoaded
	}
	if len(snap.zones) == 0 || !snap.bbox.Contains(pt) {
		return nil, nil
	}
	x, y := snap.cell(pt)
	var matched []*Zone
	// cell lists are built in ascending id order, so matches come out sorted
	for _, i := range snap.grid[cellKey{x, y}] {
		z := snap.zones[i]
		if z.Boundary.Contains(pt) {
			matched = append(matched, z)
		}
	}
	return matched, nil
}

// Loaded reports whether a zone set has been installed.
func (ix *ZoneIndex) Loaded() bool {
	return ix.snap.Load() != nil
}

// Zones returns every zone of the current snapshot, ascending by id.
// Nil when the index was never loaded.
func (ix *ZoneIndex) Zones() []*Zone {
	snap := ix.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.all
}

// Stats describes the installed snapshot for health reporting.
type Stats struct {
	ZoneCount    int       `json:"zone_count"`
	SpatialCount int       `json:"spatial_zone_count"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// Stats returns snapshot statistics, or ok=false before the first load.
func (ix *ZoneIndex) Stats() (Stats, bool) {
	snap := ix.snap.Load()
	if snap == nil {
		return Stats{}, false
	}
	return Stats{ZoneCount: snap.total, SpatialCount: len(snap.zones), LoadedAt: snap.loadedAt}, true
}

func (s *indexSnapshot) cell(pt geo.Point) (int32, int32) {
	x := clampCell(pt.Lon-s.bbox[0], s.cellW, s.dim)
	y := clampCell(pt.Lat-s.bbox[1], s.cellH, s.dim)
	return x, y
}

func clampCell(offset, size float64, dim int32) int32 {
	if size <= 0 {
		return 0
	}
	c := int32(offset / size)
	if c < 0 {
		return 0
	}
	if c >= dim {
		return dim - 1
	}
	return c
}

// gridDim scales the grid with the zone count so cell occupancy stays
// roughly constant from hundreds to tens of thousands of zones.
func gridDim(n int) int32 {
	d := int32(math.Ceil(math.Sqrt(float64(n))))
	if d < 1 {
		d = 1
	}
	if d > 128 {
		d = 128
	}
	return d
}
