package workflow

import (
	"fmt"

	"github.com/adwhq/adwflow/types"
)

// visit marks for the three-color depth-first traversal.
type visitMark int

const (
	unvisited visitMark = iota
	visiting
	visited
)

// Resolve topologically orders steps so that every step appears after all
// of its dependencies. Independent steps keep their input order, making the
// result deterministic. A cycle yields ErrCircularDependency naming a step
// on the cycle.
//
// A depends_on reference to a step that does not exist is ignored here: the
// executor is responsible for hard-failing on a genuinely missing dependency
// result at execution time.
func Resolve(steps []Step) ([]Step, error) {
	byName := make(map[string]*Step, len(steps))
	for i := range steps {
		byName[steps[i].Name] = &steps[i]
	}

	marks := make(map[string]visitMark, len(steps))
	ordered := make([]Step, 0, len(steps))

	var visitStep func(s *Step) error
	visitStep = func(s *Step) error {
		switch marks[s.Name] {
		case visited:
			return nil
		case visiting:
			return types.NewError(types.ErrCircularDependency,
				fmt.Sprintf("circular dependency involving step %q", s.Name)).WithStep(s.Name)
		}
		marks[s.Name] = visiting
		for _, dep := range s.DependsOn {
			target, ok := byName[dep]
			if !ok {
				continue
			}
			if err := visitStep(target); err != nil {
				return err
			}
		}
		marks[s.Name] = visited
		ordered = append(ordered, *s)
		return nil
	}

	for i := range steps {
		if err := visitStep(&steps[i]); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
