package bridge

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/abdel0909/mc-bot/internal/protocol"
	"github.com/abdel0909/mc-bot/internal/world"
)

var errNoBaseCube = errors.New("delta without a matching base cube")

// view is the latest observed world state. Guarded by Conn.mu.
type view struct {
	pose     world.Pose
	items    []world.Item
	held     string
	entities map[string]world.Participant
	defs     map[uint16]protocol.BlockDef

	cube   []uint16
	center [3]int
	radius int
}

func newView() view {
	return view{
		entities: map[string]world.Participant{},
		defs:     map[uint16]protocol.BlockDef{},
	}
}

func (v *view) setDefs(defs []protocol.BlockDef) {
	v.defs = make(map[uint16]protocol.BlockDef, len(defs))
	for _, d := range defs {
		v.defs[d.ID] = d
	}
}

func (v *view) setInventory(stacks []protocol.ItemStack, mainHand string) {
	v.items = v.items[:0]
	for _, s := range stacks {
		if s.Item == "" || s.Count <= 0 {
			continue
		}
		v.items = append(v.items, world.Item{Name: s.Item, Count: s.Count})
	}
	if mainHand == "NONE" {
		mainHand = ""
	}
	v.held = mainHand
}

func (v *view) setEntities(ents []protocol.EntityObs, selfID string) {
	v.entities = make(map[string]world.Participant, len(ents))
	for _, e := range ents {
		if e.Type != protocol.EntityAgent || (selfID != "" && e.ID == selfID) {
			continue
		}
		name := e.Name
		if name == "" {
			name = e.ID
		}
		v.entities[name] = world.Participant{Name: name, Pos: world.Vec3{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]}}
	}
}

func (v *view) participant(name string) (world.Participant, bool) {
	if p, ok := v.entities[name]; ok {
		return p, true
	}
	for n, p := range v.entities {
		if strings.EqualFold(n, name) {
			return p, true
		}
	}
	return world.Participant{}, false
}

func (v *view) applyVoxels(vo protocol.VoxelsObs) error {
	switch vo.Encoding {
	case "":
		return nil
	case protocol.EncodingRLE:
		n := protocol.CubeLen(vo.Radius)
		ids, err := protocol.DecodeRLE(vo.Data, n)
		if err != nil {
			return err
		}
		if len(ids) != n {
			return fmt.Errorf("voxel cube has %d entries, want %d", len(ids), n)
		}
		v.cube, v.center, v.radius = ids, vo.Center, vo.Radius
		return nil
	case protocol.EncodingDelta:
		if v.cube == nil || v.center != vo.Center || v.radius != vo.Radius {
			v.cube = nil
			return errNoBaseCube
		}
		for _, op := range vo.Ops {
			i, ok := protocol.CubeIndex(op.D[0], op.D[1], op.D[2], v.radius)
			if !ok {
				return fmt.Errorf("delta op %v outside radius %d", op.D, v.radius)
			}
			v.cube[i] = op.B
		}
		return nil
	default:
		return fmt.Errorf("unknown voxel encoding %q", vo.Encoding)
	}
}

// blockAt resolves p against the last voxel cube. It reports false when p
// is outside the cube or its palette id has no catalog entry.
func (v *view) blockAt(p world.Vec3) (world.Block, bool) {
	if v.cube == nil {
		return world.Block{}, false
	}
	x, y, z := int(math.Floor(p.X)), int(math.Floor(p.Y)), int(math.Floor(p.Z))
	i, ok := protocol.CubeIndex(x-v.center[0], y-v.center[1], z-v.center[2], v.radius)
	if !ok {
		return world.Block{}, false
	}
	def, ok := v.defs[v.cube[i]]
	if !ok {
		return world.Block{}, false
	}
	return world.Block{
		Name:     def.Name,
		Pos:      world.Vec3{X: float64(x), Y: float64(y), Z: float64(z)},
		Diggable: def.Breakable,
	}, true
}

// avoid lists non-solid blocks other than air, e.g. liquids.
func (v *view) avoid() []string {
	var out []string
	for _, d := range v.defs {
		if !d.Solid && d.Name != world.AirBlock {
			out = append(out, d.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (v *view) scaffold(fragments []string) []string {
	var out []string
	for _, it := range v.items {
		for _, f := range fragments {
			if strings.Contains(it.Name, f) {
				out = append(out, it.Name)
				break
			}
		}
	}
	return out
}
