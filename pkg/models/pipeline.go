package models

// PipelineConfig is the declarative root of one pipeline topology.
type PipelineConfig struct {
	PipelineID    string          `json:"pipeline_id" mapstructure:"pipeline_id"`
	Description   string          `json:"description,omitempty" mapstructure:"description"`
	InitialNodeID string          `json:"initial_node_id" mapstructure:"initial_node_id"`
	Elements      []ElementConfig `json:"elements" mapstructure:"elements"`
}

type ElementConfig struct {
	ElementID     string            `json:"element_id" mapstructure:"element_id"`
	Description   string            `json:"description,omitempty" mapstructure:"description"`
	NodeType      string            `json:"node_type" mapstructure:"node_type"`
	InstanceCount int               `json:"instance_count,omitempty" mapstructure:"instance_count"`
	Settings      map[string]string `json:"settings,omitempty" mapstructure:"settings"`
}

func (e ElementConfig) Setting(key string) (string, bool) {
	if e.Settings == nil {
		return "", false
	}
	value, ok := e.Settings[key]
	return value, ok
}

// Instances returns the configured instance count, at least one.
func (e ElementConfig) Instances() int {
	if e.InstanceCount < 1 {
		return 1
	}
	return e.InstanceCount
}

// Copy returns a deep copy so an accepted configuration cannot be mutated by its submitter.
func (c PipelineConfig) Copy() PipelineConfig {
	out := c
	out.Elements = make([]ElementConfig, len(c.Elements))
	for i, el := range c.Elements {
		cp := el
		if el.Settings != nil {
			cp.Settings = make(map[string]string, len(el.Settings))
			for k, v := range el.Settings {
				cp.Settings[k] = v
			}
		}
		out.Elements[i] = cp
	}
	return out
}
