package analytics

import "github.com/anthropic-labs/kgmemory/pkg/kgraph"

func entity(name, entityType string) kgraph.Entity {
	return kgraph.Entity{Name: name, EntityType: entityType}
}

func relation(from, to, relationType string) kgraph.Relation {
	return kgraph.Relation{From: from, To: to, RelationType: relationType}
}

// starGraph builds a hub-and-spoke graph: hub -> each of spokes.
func starGraph(hub string, spokes ...string) kgraph.Graph {
	g := kgraph.Graph{Entities: []kgraph.Entity{entity(hub, "Hub")}}
	for _, s := range spokes {
		g.Entities = append(g.Entities, entity(s, "Spoke"))
		g.Relations = append(g.Relations, relation(hub, s, "connects"))
	}
	return g
}

// chainGraph builds a -> b -> c -> ... linear directed chain.
func chainGraph(names ...string) kgraph.Graph {
	g := kgraph.Graph{}
	for _, n := range names {
		g.Entities = append(g.Entities, entity(n, "Node"))
	}
	for i := 0; i+1 < len(names); i++ {
		g.Relations = append(g.Relations, relation(names[i], names[i+1], "next"))
	}
	return g
}
