package resample

import (
	"context"
	"log/slog"

	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/lazy"
)

const (
	// RadiusFactor widens the estimated resolution into a search radius.
	RadiusFactor = 1.2
	// DefaultRadiusOfInfluence is used when a resolution cannot be
	// estimated, in metres.
	DefaultRadiusOfInfluence = 10000.0
)

// describeRadius returns explicit unchanged when given, otherwise a deferred
// estimate from both geometries.
func describeRadius(s *lazy.Scheduler, explicit *float64, src, dst domain.Geometry, logger *slog.Logger) *lazy.Value[float64] {
	if explicit != nil {
		return lazy.Ready(s, "radius", *explicit)
	}
	return lazy.Describe(s, "radius", func(context.Context) (float64, error) {
		return estimateRadius(src, dst, logger), nil
	})
}

// estimateRadius derives a radius from the coarser of the two geometries.
// Estimation failures are logged and fall back to the default radius.
func estimateRadius(src, dst domain.Geometry, logger *slog.Logger) float64 {
	srcRes, err := src.GeocentricResolution()
	if err != nil {
		logger.Warn("source resolution unavailable, using default radius of influence",
			"error", err, "radius_m", DefaultRadiusOfInfluence)
		return DefaultRadiusOfInfluence
	}
	dstRes, err := dst.GeocentricResolution()
	if err != nil {
		logger.Warn("target resolution unavailable, using default radius of influence",
			"error", err, "radius_m", DefaultRadiusOfInfluence)
		return DefaultRadiusOfInfluence
	}
	radius := max(srcRes, dstRes) * RadiusFactor
	logger.Debug("estimated radius of influence",
		"source_resolution_m", srcRes, "target_resolution_m", dstRes, "radius_m", radius)
	return radius
}
