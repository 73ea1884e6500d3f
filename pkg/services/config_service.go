package services

import (
	"sort"

	"github.com/govsignal/scout/pkg/config"
)

// ConfigView is the explorer payload: live values plus the static
// metadata that drives the settings panel.
type ConfigView struct {
	Values   map[string]any             `json:"values"`
	Metadata map[string]config.Metadata `json:"metadata"`
}

// ConfigUpdate reports the outcome of a partial update: which keys took,
// which were rejected, and the resulting live values.
type ConfigUpdate struct {
	Changed []string       `json:"changed"`
	Errors  []string       `json:"errors"`
	Values  map[string]any `json:"values"`
}

// ConfigService exposes the runtime tunable registry. Changes are
// in-memory only and never outlive the process; runs already admitted
// keep the snapshot they were given.
type ConfigService struct {
	registry *config.Registry
}

// NewConfigService creates a new ConfigService.
func NewConfigService(registry *config.Registry) *ConfigService {
	if registry == nil {
		panic("NewConfigService: registry must not be nil")
	}
	return &ConfigService{registry: registry}
}

// View returns the live values and tunable metadata.
func (s *ConfigService) View() ConfigView {
	return ConfigView{
		Values:   s.registry.Values(),
		Metadata: config.MetadataTable(),
	}
}

// Update applies each key independently; a bad key or value never blocks
// the others. Keys are applied in sorted order so results are stable.
func (s *ConfigService) Update(updates map[string]any) ConfigUpdate {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ConfigUpdate{Changed: []string{}, Errors: []string{}}
	for _, key := range keys {
		if err := s.registry.Set(key, updates[key]); err != nil {
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		out.Changed = append(out.Changed, key)
	}
	out.Values = s.registry.Values()
	return out
}

// Reset restores factory values and returns them.
func (s *ConfigService) Reset() map[string]any {
	s.registry.Reset()
	return s.registry.Values()
}
