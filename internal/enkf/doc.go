// Package enkf implements a perturbed-observation ensemble Kalman filter
// over encoded fire perimeters.
//
// One assimilation step takes the previous analysis mean and covariance,
// draws an ensemble around the mean, advances every member through a
// forward.Model concurrently, and corrects the forecast ensemble towards an
// observed perimeter:
//
//	s, _ := enkf.NewStep(cfg, in)
//	_ = s.GenerateEnsemble(rng)
//	_ = s.Forecast(ctx, model)
//	res, _ := s.Analyze()
//
// Filter.Step runs the three phases in order. All random draws for a step
// happen in GenerateEnsemble, before any forecast goroutine starts, so a
// fixed seed gives the same result for any worker count.
package enkf
