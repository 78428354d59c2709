// Package resources models the render cluster: nodes, GPU pipes, windows
// and channels with their run-state machines, plus the display description
// (canvases, segments, layouts, views, observers) that binds destination
// channels to output surfaces.
//
// Only the control goroutine mutates these entities. Reply handlers touch
// nothing but the StateMonitor of an entity.
package resources
