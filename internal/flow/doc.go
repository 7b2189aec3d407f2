// Package flow implements bucketed endpoint-error metrics for point-cloud
// scene-flow estimation. It classifies per-point flow error by proximity to
// the sensor, object category, ground-truth speed and error magnitude, and
// accumulates the results into a 4-D sum/count tensor that can be merged
// across validation workers and turned into a headline report.
package flow
