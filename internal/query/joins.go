package query

import (
	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

// JoinStep moves from one level to an adjacent one. When Bridge is set the
// step goes through a link table: From.FromKey = Bridge.BridgeFrom and
// Bridge.BridgeTo = To.ToKey.
type JoinStep struct {
	From       schema.EntityType
	To         schema.EntityType
	FromKey    string
	ToKey      string
	Bridge     string
	BridgeFrom string
	BridgeTo   string
	// Many is set when one From row can reach several To rows.
	Many bool
}

// Path is an ordered list of steps from an anchor level.
type Path []JoinStep

// ToMany reports whether any step fans out.
func (p Path) ToMany() bool {
	for _, s := range p {
		if s.Many {
			return true
		}
	}
	return false
}

// Graph holds the level relations used to resolve cross-level fields.
type Graph struct {
	adj map[schema.EntityType][]JoinStep
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{adj: make(map[schema.EntityType][]JoinStep)}
}

// OneToMany relates parent.id to child.<fk>. Both directions are added.
func (g *Graph) OneToMany(parent, child schema.EntityType, fk string) *Graph {
	g.adj[parent] = append(g.adj[parent], JoinStep{From: parent, To: child, FromKey: "id", ToKey: fk, Many: true})
	g.adj[child] = append(g.adj[child], JoinStep{From: child, To: parent, FromKey: fk, ToKey: "id"})
	return g
}

// ManyToMany relates a and b through a link table.
func (g *Graph) ManyToMany(a, b schema.EntityType, bridge, aKey, bKey string) *Graph {
	g.adj[a] = append(g.adj[a], JoinStep{From: a, To: b, FromKey: "id", ToKey: "id", Bridge: bridge, BridgeFrom: aKey, BridgeTo: bKey, Many: true})
	g.adj[b] = append(g.adj[b], JoinStep{From: b, To: a, FromKey: "id", ToKey: "id", Bridge: bridge, BridgeFrom: bKey, BridgeTo: aKey, Many: true})
	return g
}

// DefaultGraph is compound -> batch -> assay_result -> assay_run -> assay,
// with additions linked to batches.
func DefaultGraph() *Graph {
	return NewGraph().
		OneToMany(schema.Compound, schema.Batch, "compound_id").
		OneToMany(schema.Batch, schema.AssayResult, "batch_id").
		OneToMany(schema.AssayRun, schema.AssayResult, "assay_run_id").
		OneToMany(schema.Assay, schema.AssayRun, "assay_id").
		ManyToMany(schema.Batch, schema.Addition, "batch_additions", "batch_id", "addition_id")
}

// ShortestPath finds the path with the fewest steps using breadth-first
// search. Ties resolve by edge insertion order so results are stable.
func (g *Graph) ShortestPath(from, to schema.EntityType) (Path, error) {
	if from == to {
		return nil, nil
	}
	prev := map[schema.EntityType]JoinStep{}
	visited := map[schema.EntityType]bool{from: true}
	queue := []schema.EntityType{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, step := range g.adj[cur] {
			if visited[step.To] {
				continue
			}
			visited[step.To] = true
			prev[step.To] = step
			if step.To == to {
				return g.unwind(prev, from, to), nil
			}
			queue = append(queue, step.To)
		}
	}
	return nil, errs.New(errs.NoJoinPath, "no join path from %s to %s", from.Table(), to.Table()).WithEntity(string(from))
}

func (g *Graph) unwind(prev map[schema.EntityType]JoinStep, from, to schema.EntityType) Path {
	var rev Path
	for cur := to; cur != from; {
		step := prev[cur]
		rev = append(rev, step)
		cur = step.From
	}
	path := make(Path, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}
