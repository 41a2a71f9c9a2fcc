package ip

import (
	"fmt"
	"strings"

	"github.com/mooreio/mio/pkg/engine"
)

// DependenciesInOrder returns the transitive dependencies of ip, each one after
// all of its own dependencies. ip itself is not part of the result.
//
// The order is computed with Kahn's algorithm over every registered IP, with
// edges taken from the dependency tree of ip only. A cycle reachable from ip
// fails the ordering; cycles among unrelated IPs do not.
func (db *Database) DependenciesInOrder(ip *IP) ([]*IP, error) {
	// dependency -> dependents
	edges := make(map[*IP][]*IP)
	related := make(map[*IP]bool)
	collectEdges(ip, edges, related)

	universe := db.All()
	inUniverse := make(map[*IP]bool, len(universe))
	for _, node := range universe {
		inUniverse[node] = true
	}
	// IPs resolved against entries that have since been removed still take part.
	for node := range related {
		if !inUniverse[node] {
			universe = append(universe, node)
			inUniverse[node] = true
		}
	}
	if !inUniverse[ip] {
		universe = append(universe, ip)
	}

	inDegree := make(map[*IP]int, len(universe))
	for _, node := range universe {
		for _, dependent := range edges[node] {
			inDegree[dependent]++
		}
	}

	queue := make([]*IP, 0, len(universe))
	for _, node := range universe {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*IP, 0, len(universe))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, dependent := range edges[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(universe) {
		err := engine.NewDomainError(fmt.Sprintf("a cycle was detected in %s dependencies", ip), nil).
			WithCode(engine.ErrCodeDependencyCycle).
			WithIP(ip.QualifiedName())
		if cycle := findCycle(ip); len(cycle) > 0 {
			err = err.WithDetail("cycle", formatCycle(cycle))
		}
		return nil, err
	}

	result := make([]*IP, 0, len(related))
	for _, node := range order {
		if node != ip && related[node] {
			result = append(result, node)
		}
	}
	return result, nil
}

func collectEdges(ip *IP, edges map[*IP][]*IP, seen map[*IP]bool) {
	if seen[ip] {
		return
	}
	seen[ip] = true
	for _, dep := range ip.ResolvedDependencies() {
		edges[dep] = append(edges[dep], ip)
		collectEdges(dep, edges, seen)
	}
}

// findCycle walks the resolved edges depth-first and returns the first cycle
// reachable from ip, starting and ending on the same IP.
func findCycle(ip *IP) []string {
	visited := make(map[*IP]bool)
	onStack := make(map[*IP]bool)
	var path []*IP

	var visit func(n *IP) []string
	visit = func(n *IP) []string {
		visited[n] = true
		onStack[n] = true
		path = append(path, n)
		for _, dep := range n.ResolvedDependencies() {
			if onStack[dep] {
				var cycle []string
				start := 0
				for idx, p := range path {
					if p == dep {
						start = idx
						break
					}
				}
				for _, p := range path[start:] {
					cycle = append(cycle, p.QualifiedName())
				}
				return append(cycle, dep.QualifiedName())
			}
			if !visited[dep] {
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		onStack[n] = false
		path = path[:len(path)-1]
		return nil
	}
	return visit(ip)
}

func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
