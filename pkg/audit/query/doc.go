// Package query validates audit queries and fills in their defaults.
//
// Validation rejects negative or oversized limits, unknown sort fields,
// inverted time ranges and confidence bounds outside [0, 1]. Defaults sort
// by decision time, newest first.
package query
