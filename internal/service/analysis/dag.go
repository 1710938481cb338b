package analysis

import (
	"sort"

	"mra/internal/domain"
)

// ResolveExecutionOrder computes a topological ordering of jobs using Kahn's
// algorithm. Returns levels of job names where each level can execute in
// parallel, sorted by name within a level. Returns an InvalidSchema error for
// duplicate names, unknown or self dependencies and cycles.
func ResolveExecutionOrder(jobs []Job) ([][]string, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string) // dep name → names of jobs that depend on it

	for _, j := range jobs {
		if j.Name == "" {
			return nil, domain.ErrInvalidSchema("job name must not be empty")
		}
		if _, ok := inDegree[j.Name]; ok {
			return nil, domain.ErrInvalidSchema("duplicate job name: %s", j.Name)
		}
		inDegree[j.Name] = 0
	}

	for _, j := range jobs {
		for _, dep := range j.DependsOn {
			if _, ok := inDegree[dep]; !ok {
				return nil, domain.ErrInvalidSchema("unknown dependency: %s", dep)
			}
			if dep == j.Name {
				return nil, domain.ErrInvalidSchema("self dependency: %s", j.Name)
			}
			dependents[dep] = append(dependents[dep], j.Name)
			inDegree[j.Name]++
		}
	}

	var levels [][]string
	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		sort.Strings(queue)
		level := make([]string, len(queue))
		copy(level, queue)
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if processed != len(jobs) {
		return nil, domain.ErrInvalidSchema("cycle detected in job dependencies")
	}
	return levels, nil
}
