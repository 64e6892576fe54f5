package descriptor

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Whitening is a linear transform applied to regional descriptors.
type Whitening interface {
	Transform(v []float32) []float32
	InputDim() int
	OutputDim() int
}

// PCA projects vectors onto principal components, optionally dividing by
// the square root of each component's variance.
type PCA struct {
	Mean              []float32   `json:"mean"`
	Components        [][]float32 `json:"components"`
	ExplainedVariance []float32   `json:"explained_variance"`
	Whiten            bool        `json:"whiten"`
}

// InputDim is the descriptor length the projection expects.
func (p *PCA) InputDim() int { return len(p.Mean) }

// OutputDim is the number of principal components kept.
func (p *PCA) OutputDim() int { return len(p.Components) }

// Transform computes (v - mean)·componentsᵀ. v must have InputDim entries.
func (p *PCA) Transform(v []float32) []float32 {
	out := make([]float32, len(p.Components))
	for k, comp := range p.Components {
		var dot float64
		for i, c := range comp {
			dot += (float64(v[i]) - float64(p.Mean[i])) * float64(c)
		}
		if p.Whiten {
			if ev := float64(p.ExplainedVariance[k]); ev > 0 {
				dot /= math.Sqrt(ev)
			}
		}
		out[k] = float32(dot)
	}
	return out
}

// Validate checks that mean, components and variances agree in shape.
func (p *PCA) Validate() error {
	if len(p.Mean) == 0 {
		return fmt.Errorf("pca: empty mean")
	}
	if len(p.Components) == 0 {
		return fmt.Errorf("pca: no components")
	}
	for k, comp := range p.Components {
		if len(comp) != len(p.Mean) {
			return fmt.Errorf("pca: component %d has %d entries, mean has %d", k, len(comp), len(p.Mean))
		}
	}
	if p.Whiten && len(p.ExplainedVariance) != len(p.Components) {
		return fmt.Errorf("pca: %d variances for %d components", len(p.ExplainedVariance), len(p.Components))
	}
	return nil
}

// LoadPCA reads a PCA transform from its JSON file.
func LoadPCA(path string) (*PCA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p PCA
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("pca %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}
