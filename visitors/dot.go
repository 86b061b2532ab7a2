package visitors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bawdo/querytree/nodes"
)

// Fill colors by node category.
const (
	colorQuery      = "#6CA6CD"
	colorPath       = "#B0D4E8"
	colorComparison = "#FFB347"
	colorLogical    = "#FFEB80"
	colorLiteral    = "#D3D3D3"
	colorJoin       = "#77DD77"
	colorOrdering   = "#CDA0E0"
	colorArithmetic = "#98FB98"
	colorFunction   = "#87CEEB"
)

type dotNode struct {
	id    string
	label string
	color string
}

type dotEdge struct {
	from  string
	to    string
	label string
}

type pluginCluster struct {
	name    string
	color   string
	nodeIDs []string
}

// PluginProvenance attributes WHERE conjuncts to the plugin that added them.
type PluginProvenance struct {
	byHash map[uint64]provenanceEntry
}

type provenanceEntry struct {
	plugin string
	color  string
}

// NewPluginProvenance creates an empty tracker.
func NewPluginProvenance() *PluginProvenance {
	return &PluginProvenance{byHash: make(map[uint64]provenanceEntry)}
}

// AddWhere marks pred as added by plugin.
func (pp *PluginProvenance) AddWhere(plugin, color string, pred nodes.Expression) {
	pp.byHash[pred.Hash()] = provenanceEntry{plugin: plugin, color: color}
}

func (pp *PluginProvenance) lookup(e nodes.Expression) (provenanceEntry, bool) {
	if pp == nil {
		return provenanceEntry{}, false
	}
	p, ok := pp.byHash[e.Hash()]
	return p, ok
}

// dotEdgeCtx is the parent a visited node attaches to.
type dotEdgeCtx struct {
	parent string
	label  string
}

// DotVisitor renders expressions and query metadata as a Graphviz digraph.
type DotVisitor struct {
	nextID     int
	nodes      []dotNode
	edges      []dotEdge
	clusters   []pluginCluster
	provenance *PluginProvenance
}

// NewDotVisitor creates an empty graph.
func NewDotVisitor() *DotVisitor {
	return &DotVisitor{}
}

// SetProvenance enables plugin clusters for WHERE conjuncts.
func (dv *DotVisitor) SetProvenance(p *PluginProvenance) {
	dv.provenance = p
}

func (dv *DotVisitor) addNode(label, color string, ctx dotEdgeCtx) string {
	id := fmt.Sprintf("n%d", dv.nextID)
	dv.nextID++
	dv.nodes = append(dv.nodes, dotNode{id: id, label: label, color: color})
	if ctx.parent != "" {
		dv.edges = append(dv.edges, dotEdge{from: ctx.parent, to: id, label: ctx.label})
	}
	return id
}

func (dv *DotVisitor) child(parent, label string, e nodes.Expression) string {
	return nodes.Accept[string, dotEdgeCtx](e, dv, dotEdgeCtx{parent: parent, label: label})
}

func (dv *DotVisitor) children(parent, prefix string, es []nodes.Expression) {
	for i, e := range es {
		dv.child(parent, fmt.Sprintf("%s[%d]", prefix, i), e)
	}
}

// AddExpression adds e as a root of the graph.
func (dv *DotVisitor) AddExpression(e nodes.Expression) string {
	return dv.child("", "", e)
}

// AddQuery adds md as a root of the graph.
func (dv *DotVisitor) AddQuery(md *nodes.QueryMetadata) string {
	return dv.query(md, dotEdgeCtx{})
}

func (dv *DotVisitor) query(md *nodes.QueryMetadata, ctx dotEdgeCtx) string {
	label := "Query"
	if md.IsDistinct() {
		label += "\\nDISTINCT"
	}
	id := dv.addNode(label, colorQuery, ctx)
	for i, f := range md.Flags() {
		dv.child(id, fmt.Sprintf("FLAG[%d]", i), f.Flag)
	}
	if p := md.Projection(); p != nil {
		dv.child(id, "SELECT", p)
	}
	for i, j := range md.Joins() {
		jid := dv.addNode("Join\\n"+j.Type.String(), colorJoin, dotEdgeCtx{parent: id, label: fmt.Sprintf("JOIN[%d]", i)})
		dv.child(jid, "TARGET", j.Target)
		if j.On != nil {
			dv.child(jid, "ON", j.On)
		}
	}
	dv.where(id, md.Where())
	dv.children(id, "GROUP", md.GroupBy())
	if h := md.Having(); h != nil {
		dv.child(id, "HAVING", h)
	}
	for i, o := range md.OrderBy() {
		label := "Ordering\\n" + strings.ToUpper(o.Order.String())
		oid := dv.addNode(label, colorOrdering, dotEdgeCtx{parent: id, label: fmt.Sprintf("ORDER[%d]", i)})
		dv.child(oid, "EXPR", o.Target)
	}
	if n, ok := md.Limit(); ok {
		dv.addNode(fmt.Sprintf("Limit\\n%d", n), colorLiteral, dotEdgeCtx{parent: id, label: "LIMIT"})
	}
	if n, ok := md.Offset(); ok {
		dv.addNode(fmt.Sprintf("Offset\\n%d", n), colorLiteral, dotEdgeCtx{parent: id, label: "OFFSET"})
	}
	if u := md.Union(); u != nil {
		dv.child(id, "UNION", u)
	}
	return id
}

// where visits each top-level conjunct, grouping plugin-added ones into
// clusters.
func (dv *DotVisitor) where(parent string, w nodes.Expression) {
	clusters := make(map[string]*pluginCluster)
	for i, c := range conjuncts(w) {
		start := len(dv.nodes)
		dv.child(parent, fmt.Sprintf("WHERE[%d]", i), c)
		p, ok := dv.provenance.lookup(c)
		if !ok {
			continue
		}
		cl, exists := clusters[p.plugin]
		if !exists {
			cl = &pluginCluster{name: p.plugin, color: p.color}
			clusters[p.plugin] = cl
		}
		for _, n := range dv.nodes[start:] {
			cl.nodeIDs = append(cl.nodeIDs, n.id)
		}
	}
	names := make([]string, 0, len(clusters))
	for name := range clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dv.clusters = append(dv.clusters, *clusters[name])
	}
}

// conjuncts splits a left-nested AND chain.
func conjuncts(e nodes.Expression) []nodes.Expression {
	if e == nil {
		return nil
	}
	o, ok := e.(*nodes.Operation)
	if !ok || o.Operator() != nodes.OpAnd {
		return []nodes.Expression{e}
	}
	return append(conjuncts(o.Arg(0)), conjuncts(o.Arg(1))...)
}

func (dv *DotVisitor) VisitPath(p *nodes.Path, ctx dotEdgeCtx) string {
	if p.IsEntity() {
		return dv.addNode("Entity\\n"+p.Table()+" "+p.Name(), colorQuery, ctx)
	}
	return dv.addNode("Path\\n"+p.String(), colorPath, ctx)
}

func (dv *DotVisitor) VisitConstant(c *nodes.Constant, ctx dotEdgeCtx) string {
	return dv.addNode("Constant\\n"+fmt.Sprint(c.Value()), colorLiteral, ctx)
}

func (dv *DotVisitor) VisitNull(_ *nodes.Null, ctx dotEdgeCtx) string {
	return dv.addNode("Null", colorLiteral, ctx)
}

func (dv *DotVisitor) VisitParam(p *nodes.Param, ctx dotEdgeCtx) string {
	return dv.addNode("Param\\n"+p.String(), colorLiteral, ctx)
}

func (dv *DotVisitor) VisitOperation(o *nodes.Operation, ctx dotEdgeCtx) string {
	id := dv.addNode(string(o.Operator()), operatorColor(o.Operator()), ctx)
	dv.children(id, "ARG", o.Args())
	return id
}

func (dv *DotVisitor) VisitTemplate(t *nodes.TemplateExpr, ctx dotEdgeCtx) string {
	id := dv.addNode("Template\\n"+t.Pattern(), colorFunction, ctx)
	dv.children(id, "ARG", t.Args())
	return id
}

func (dv *DotVisitor) VisitSubQuery(s *nodes.SubQuery, ctx dotEdgeCtx) string {
	return dv.query(s.Metadata(), ctx)
}

func (dv *DotVisitor) VisitFactory(f *nodes.Factory, ctx dotEdgeCtx) string {
	id := dv.addNode("Factory\\n"+f.Name(), colorFunction, ctx)
	dv.children(id, "ARG", f.Args())
	return id
}

func operatorColor(op nodes.Operator) string {
	switch op {
	case nodes.OpAnd, nodes.OpOr, nodes.OpNot:
		return colorLogical
	case nodes.OpAdd, nodes.OpSub, nodes.OpMult, nodes.OpDiv, nodes.OpMod, nodes.OpNegate, nodes.OpAbs:
		return colorArithmetic
	case nodes.OpAsc, nodes.OpDesc, nodes.OpNullsFirst, nodes.OpNullsLast:
		return colorOrdering
	}
	if sig, ok := nodes.SignatureOf(op); ok && sig.Returns.Kind == nodes.KindBoolean {
		return colorComparison
	}
	return colorFunction
}

// ToDot returns the accumulated graph in DOT syntax.
func (dv *DotVisitor) ToDot() string {
	var sb strings.Builder
	sb.WriteString("digraph AST {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	sb.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")

	clustered := make(map[string]bool)
	for _, c := range dv.clusters {
		for _, id := range c.nodeIDs {
			clustered[id] = true
		}
	}
	byID := make(map[string]dotNode, len(dv.nodes))
	for _, n := range dv.nodes {
		byID[n.id] = n
		if !clustered[n.id] {
			fmt.Fprintf(&sb, "  %s [label=\"%s\", fillcolor=\"%s\"];\n", n.id, escapeLabel(n.label), n.color)
		}
	}
	for i, c := range dv.clusters {
		fmt.Fprintf(&sb, "  subgraph cluster_%d_%s {\n", i, c.name)
		fmt.Fprintf(&sb, "    label=\"%s\";\n", c.name)
		sb.WriteString("    style=dashed;\n")
		fmt.Fprintf(&sb, "    color=\"%s\";\n", c.color)
		for _, id := range c.nodeIDs {
			n := byID[id]
			fmt.Fprintf(&sb, "    %s [label=\"%s\", fillcolor=\"%s\"];\n", n.id, escapeLabel(n.label), n.color)
		}
		sb.WriteString("  }\n")
	}
	for _, e := range dv.edges {
		if e.label != "" {
			fmt.Fprintf(&sb, "  %s -> %s [label=\"%s\"];\n", e.from, e.to, e.label)
		} else {
			fmt.Fprintf(&sb, "  %s -> %s;\n", e.from, e.to)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// escapeLabel escapes double quotes. \n sequences are DOT line breaks and
// are kept.
func escapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
