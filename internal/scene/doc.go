// Package scene defines the scene key, the unit of work passed between the
// transfer manager and the step runner, and the on-disk working area layout
// (<root>/PPPRRR/YYYYMMDD with extracted bands under Bands/).
package scene
