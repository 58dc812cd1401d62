package nodes

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// nodesFile matches the on-disk layout: either a bare array of listeners
// or an object with a "nodes" key wrapping the same array.
type nodesFile struct {
	Nodes []*ListenerConfig `json:"nodes"`
}

// LoadFile reads listener configuration from path. A missing file is not an
// error: the pipeline runs with zero listeners and the default prompt until
// configuration appears. Invalid entries are skipped with a warning so one
// bad listener cannot take down the rest.
func LoadFile(path string) ([]*ListenerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[WARN] nodes file %s not found, starting with no listeners", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read nodes file: %w", err)
	}

	var listeners []*ListenerConfig
	if err := json.Unmarshal(raw, &listeners); err != nil {
		var wrapped nodesFile
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse nodes file: %w", err)
		}
		listeners = wrapped.Nodes
	}

	out := make([]*ListenerConfig, 0, len(listeners))
	for i, l := range listeners {
		if l == nil {
			continue
		}
		if err := l.Validate(); err != nil {
			log.Printf("[WARN] skipping listener %d in %s: %v", i, path, err)
			continue
		}
		if l.ID == "" {
			l.ID = fmt.Sprintf("node_%d", i)
		}
		out = append(out, l)
	}
	return out, nil
}
