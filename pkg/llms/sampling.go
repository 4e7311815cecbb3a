package llms

import "strings"

// Default sampling applied when the client leaves the knobs unset.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
)

func floatPtr(v float64) *float64 {
	return &v
}

// NormalizeSampling applies per-model-family sampling overrides.
//
// glm-family models ignore client-provided temperature and top_p entirely:
// those backends misbehave with anything but temperature=0.7, top_p=1.0.
// Every other family passes client values through, filling in the defaults
// when absent. min_p is never touched.
func NormalizeSampling(model string, s Sampling) Sampling {
	family := strings.ToLower(model)
	if i := strings.LastIndex(family, ":"); i >= 0 {
		family = family[i+1:]
	}

	if strings.HasPrefix(family, "glm") {
		return Sampling{
			Temperature: floatPtr(0.7),
			TopP:        floatPtr(1.0),
			MinP:        s.MinP,
		}
	}

	out := s
	if out.Temperature == nil {
		out.Temperature = floatPtr(DefaultTemperature)
	}
	if out.TopP == nil {
		out.TopP = floatPtr(DefaultTopP)
	}
	return out
}
