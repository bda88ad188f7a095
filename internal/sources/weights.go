package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultWeight applies to platforms missing from the weights file.
const DefaultWeight = 0.5

// Weights maps platform names to a score weight in [0, 1].
type Weights map[string]float64

// LoadWeights reads a YAML "platform: weight" file. An empty path yields no overrides.
func LoadWeights(path string) (Weights, error) {
	if path == "" {
		return Weights{}, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}
	raw := map[string]float64{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}
	w := make(Weights, len(raw))
	for k, v := range raw {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("weight for %s must be within [0, 1], got %v", k, v)
		}
		w[k] = v
	}
	return w, nil
}

// Weight returns the weight for a platform, trying the raw and the normalised name.
func (w Weights) Weight(platform string) float64 {
	if v, ok := w[platform]; ok {
		return v
	}
	if v, ok := w[NormalizePlatform(platform)]; ok {
		return v
	}
	return DefaultWeight
}
