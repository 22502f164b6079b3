// Package rewritegraph renders the small-repo/large-repo commit-mapping DAG
// as a graphviz dot file for operator debugging. It is modeled directly on
// the teacher's cmd/gitgraph, which walks a git fast-export stream building
// one dot.Node per commit and one dot.Edge per parent/merge link; here the
// nodes are large-repo and small-repo changesets and the edges are
// commitsync.MappingEntry rows instead of git parent links.
package rewritegraph

import (
	"fmt"
	"io"

	"github.com/emicklei/dot"
	"github.com/goccy/go-graphviz"

	"github.com/rivermark/scmcore/commitsync"
	"github.com/rivermark/scmcore/scmtypes"
)

// side mirrors gitgraph's per-commit branch bookkeeping: a node belongs to
// either the large repo or the small repo half of the DAG.
type side int

const (
	sideLargeRepo side = iota
	sideSmallRepo
)

// nodeKey identifies one commit node regardless of which repo it is in.
type nodeKey struct {
	side side
	repo scmtypes.RepositoryId
	bcs  scmtypes.ChangesetId
}

func (k nodeKey) label() string {
	tag := "large"
	if k.side == sideSmallRepo {
		tag = "small"
	}
	return fmt.Sprintf("%s:%d:%s", tag, k.repo, k.bcs.String()[:12])
}

// MappingGraph accumulates MappingEntry rows and renders them as a dot
// graph, the way gitgraph.GitGraph accumulates GitCommits before writing
// g.graph.String() at the end of ParseGitImport.
type MappingGraph struct {
	graph *dot.Graph
	nodes map[nodeKey]dot.Node
}

func NewMappingGraph() *MappingGraph {
	return &MappingGraph{
		graph: dot.NewGraph(dot.Directed),
		nodes: make(map[nodeKey]dot.Node),
	}
}

func (g *MappingGraph) node(k nodeKey) dot.Node {
	if n, ok := g.nodes[k]; ok {
		return n
	}
	n := g.graph.Node(k.label())
	g.nodes[k] = n
	return n
}

// AddMapping adds one edge for a synced_commit_mapping row, labeled with the
// sync version name when one was recorded (spec.md §4.2 MappingEntry).
func (g *MappingGraph) AddMapping(entry commitsync.MappingEntry) {
	large := g.node(nodeKey{side: sideLargeRepo, repo: entry.LargeRepoId, bcs: entry.LargeBcsId})
	small := g.node(nodeKey{side: sideSmallRepo, repo: entry.SmallRepoId, bcs: entry.SmallBcsId})

	label := entry.SourceRepo.String()
	if entry.VersionName != nil {
		label = fmt.Sprintf("%s (%s)", label, *entry.VersionName)
	}
	g.graph.Edge(large, small, label)
}

// AddWorkingCopyEquivalence adds an edge for a
// synced_working_copy_equivalence row. A nil SmallBcsId (NoWorkingCopy,
// spec.md §4.2) is rendered against a synthetic "none" node rather than
// being skipped, so the absence is visible in the rendered graph.
func (g *MappingGraph) AddWorkingCopyEquivalence(entry commitsync.WorkingCopyEquivalenceEntry) {
	large := g.node(nodeKey{side: sideLargeRepo, repo: entry.LargeRepoId, bcs: entry.LargeBcsId})

	var small dot.Node
	if entry.SmallBcsId == nil {
		small = g.graph.Node(fmt.Sprintf("small:%d:<none>", entry.SmallRepoId))
	} else {
		small = g.node(nodeKey{side: sideSmallRepo, repo: entry.SmallRepoId, bcs: *entry.SmallBcsId})
	}

	label := "wce"
	if entry.VersionName != nil {
		label = fmt.Sprintf("wce (%s)", *entry.VersionName)
	}
	g.graph.Edge(large, small, label)
}

// WriteDot writes the accumulated graph in graphviz dot format, the same
// output gitgraph's main wrote via f.Write([]byte(g.graph.String())).
func (g *MappingGraph) WriteDot(w io.Writer) error {
	_, err := io.WriteString(w, g.graph.String())
	return err
}

// RenderPNG lays the graph out with graphviz and writes a PNG, for
// operators who want a picture rather than a dot file to feed elsewhere.
func (g *MappingGraph) RenderPNG(w io.Writer) error {
	gv := graphviz.New()
	parsed, err := graphviz.ParseBytes([]byte(g.graph.String()))
	if err != nil {
		return fmt.Errorf("rewritegraph: parsing dot output: %w", err)
	}
	defer gv.Close()
	return gv.Render(parsed, graphviz.PNG, w)
}
