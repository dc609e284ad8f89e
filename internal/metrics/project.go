package metrics

import "github.com/northlane-labs/social-tracker/internal/models"

// project renders a Sample as a field map. With no fields requested, every
// field in models.SampleFields is included; otherwise only the listed paths.
func project(s *models.Sample, fields []string) map[string]any {
	out := map[string]any{
		"accountId":  s.AccountID,
		"observedAt": s.ObservedAt,
	}
	paths := fields
	if len(paths) == 0 {
		paths = models.SampleFields
	}
	for _, p := range paths {
		if v, ok := s.Field(p); ok {
			out[p] = v
		}
	}
	return out
}

// projectNumeric is project's numeric-only counterpart, used for Bucket
// values where every entry must be a float64.
func projectNumeric(s *models.Sample, fields []string) map[string]float64 {
	paths := fields
	if len(paths) == 0 {
		paths = models.SampleFields
	}
	out := make(map[string]float64, len(paths))
	for _, p := range paths {
		if v, ok := s.Field(p); ok {
			out[p] = v
		}
	}
	return out
}
