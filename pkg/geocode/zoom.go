package geocode

// ZoomFor picks an initial map zoom. Bounds win over confidence.
func ZoomFor(r Result) int {
	if r.Bounds != nil {
		span := r.Bounds.Span()
		switch {
		case span > 0.1:
			return 10
		case span > 0.05:
			return 12
		case span > 0.01:
			return 14
		default:
			return 16
		}
	}
	switch {
	case r.Confidence > 0.8:
		return 16
	case r.Confidence > 0.6:
		return 14
	case r.Confidence > 0.4:
		return 12
	default:
		return 10
	}
}
