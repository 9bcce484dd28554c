package build

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// UnusedName returns base if no container on engineID is called that,
// otherwise the first of base-2, base-3, ... that is free. If containers
// cannot be listed the base name is returned unchanged.
func UnusedName(ctx context.Context, engine Engine, engineID, base string) string {
	taken := make(map[string]bool)
	containers, err := engine.ListContainers(ctx, engineID)
	if err != nil {
		log.Printf("build: could not get existing container names: %v", err)
	}
	for _, c := range containers {
		for _, n := range c.Names {
			taken[strings.TrimPrefix(n, "/")] = true
		}
	}

	name := base
	for count := 2; taken[name]; count++ {
		name = fmt.Sprintf("%s-%d", base, count)
	}
	return name
}
