// Package builtin registers every node type shipped with switchyard.
package builtin

import (
	"switchyard/internal/node"
	"switchyard/internal/node/sink"
	"switchyard/internal/node/transform"
)

func Register(reg *node.Registry, deps sink.Deps) error {
	if err := transform.Register(reg); err != nil {
		return err
	}
	return sink.Register(reg, deps)
}

// NewRegistry returns a registry holding the builtin node types.
func NewRegistry(deps sink.Deps) (*node.Registry, error) {
	reg := node.NewRegistry()
	if err := Register(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}
