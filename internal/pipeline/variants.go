package pipeline

import (
	"github.com/rotisserie/eris"
)

// Variant names accepted by Build.
const (
	VariantFull     = "full"
	VariantScript   = "script"
	VariantAnalysis = "analysis"
)

// Variants lists the built-in variants in display order.
var Variants = []string{VariantFull, VariantScript, VariantAnalysis}

// StepSet holds one implementation of each step. Variants are step lists
// drawn from the same set.
type StepSet struct {
	Restaurant Step
	Menu       Step
	Script     Step
	Production Step
}

// Build returns the validated pipeline for the named variant.
func (s StepSet) Build(variant string) (*Pipeline, error) {
	switch variant {
	case "", VariantFull:
		return New(VariantFull, s.Restaurant, s.Menu, s.Script, s.Production)
	case VariantScript:
		return New(VariantScript, s.Restaurant, s.Menu, s.Script)
	case VariantAnalysis:
		return New(VariantAnalysis, s.Restaurant)
	default:
		return nil, eris.Errorf("pipeline: unknown variant %q", variant)
	}
}

// BuildAll validates every built-in variant.
func (s StepSet) BuildAll() (map[string]*Pipeline, error) {
	out := make(map[string]*Pipeline, len(Variants))
	for _, v := range Variants {
		p, err := s.Build(v)
		if err != nil {
			return nil, err
		}
		out[v] = p
	}
	return out, nil
}
