package mods

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/reedfamily/zomboidbot/internal/workshop"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var (
	ErrUnknownMod   = errors.New("no mod found")
	ErrAmbiguousMod = errors.New("ambiguous mod name")
)

// Graph is the dependency graph of installed mods. An edge runs from a mod
// to each mod it requires. Requirements that were never resolved are kept as
// bare nodes.
type Graph struct {
	g    *simple.DirectedGraph
	ids  map[string]int64
	mods map[int64]workshop.Mod
}

func NewGraph(mods ...workshop.Mod) *Graph {
	gr := &Graph{
		g:    simple.NewDirectedGraph(),
		ids:  map[string]int64{},
		mods: map[int64]workshop.Mod{},
	}
	for _, m := range mods {
		gr.Add(m)
	}
	return gr
}

// Add inserts or updates m and its requirement edges.
func (gr *Graph) Add(m workshop.Mod) {
	id := gr.node(m.WorkshopID)
	gr.mods[id] = m
	for _, req := range m.Required {
		to := gr.node(req)
		if to != id && !gr.g.HasEdgeFromTo(id, to) {
			gr.g.SetEdge(gr.g.NewEdge(gr.g.Node(id), gr.g.Node(to)))
		}
	}
}

func (gr *Graph) node(workshopID string) int64 {
	if id, ok := gr.ids[workshopID]; ok {
		return id
	}
	n := gr.g.NewNode()
	gr.g.AddNode(n)
	gr.ids[workshopID] = n.ID()
	if _, ok := gr.mods[n.ID()]; !ok {
		gr.mods[n.ID()] = workshop.Mod{WorkshopID: workshopID}
	}
	return n.ID()
}

// Remove drops the mod and every edge touching it.
func (gr *Graph) Remove(workshopID string) {
	id, ok := gr.ids[workshopID]
	if !ok {
		return
	}
	gr.g.RemoveNode(id)
	delete(gr.ids, workshopID)
	delete(gr.mods, id)
}

// Lookup resolves a workshop id, or failing that a case-insensitive mod
// name, to the mod it names.
func (gr *Graph) Lookup(identifier string) (workshop.Mod, error) {
	id, err := gr.lookup(identifier)
	if err != nil {
		return workshop.Mod{}, err
	}
	return gr.mods[id], nil
}

func (gr *Graph) lookup(identifier string) (int64, error) {
	if id, ok := gr.ids[identifier]; ok {
		return id, nil
	}
	var matches []int64
	for id, m := range gr.mods {
		if m.Name != "" && strings.EqualFold(m.Name, identifier) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMod, identifier)
	case 1:
		return matches[0], nil
	default:
		return 0, fmt.Errorf("%w: %q matches %d mods", ErrAmbiguousMod, identifier, len(matches))
	}
}

// Dependencies lists the workshop ids the mod requires directly.
func (gr *Graph) Dependencies(identifier string) ([]string, error) {
	id, err := gr.lookup(identifier)
	if err != nil {
		return nil, err
	}
	return gr.workshopIDs(gr.g.From(id)), nil
}

// Dependents lists the workshop ids that require the mod directly.
func (gr *Graph) Dependents(identifier string) ([]string, error) {
	id, err := gr.lookup(identifier)
	if err != nil {
		return nil, err
	}
	return gr.workshopIDs(gr.g.To(id)), nil
}

// Mods returns every known mod sorted by workshop id.
func (gr *Graph) Mods() []workshop.Mod {
	out := make([]workshop.Mod, 0, len(gr.mods))
	for _, m := range gr.mods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkshopID < out[j].WorkshopID })
	return out
}

// InstallOrder sorts mods so that every mod comes after the mods it
// requires. Requirements outside mods are ignored.
func InstallOrder(mods map[string]workshop.Mod) ([]workshop.Mod, error) {
	g := simple.NewDirectedGraph()
	ids := make([]string, 0, len(mods))
	for id := range mods {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := map[string]int64{}
	byNode := map[int64]string{}
	for i, id := range ids {
		g.AddNode(simple.Node(i))
		nodes[id] = int64(i)
		byNode[int64(i)] = id
	}
	for _, id := range ids {
		for _, req := range mods[id].Required {
			from, ok := nodes[req]
			if !ok || req == id {
				continue
			}
			g.SetEdge(g.NewEdge(g.Node(from), g.Node(nodes[id])))
		}
	}

	sorted, err := topo.SortStabilized(g, func(ns []graph.Node) {
		sort.Slice(ns, func(i, j int) bool { return ns[i].ID() < ns[j].ID() })
	})
	if err != nil {
		return nil, fmt.Errorf("mod requirements form a cycle: %w", err)
	}
	out := make([]workshop.Mod, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, mods[byNode[n.ID()]])
	}
	return out, nil
}

func (gr *Graph) workshopIDs(it graph.Nodes) []string {
	var out []string
	for it.Next() {
		out = append(out, gr.mods[it.Node().ID()].WorkshopID)
	}
	sort.Strings(out)
	return out
}
