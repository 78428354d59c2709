// Package fabric holds the value types shared by every layer of the
// rendering control plane: normalized and pixel viewports, data ranges,
// pixel/subpixel decompositions, zoom, frusta, bitmasks for eyes, tasks and
// buffers, the render context that accompanies every task command, the
// statistics reported back by render clients and the Defaults policy value
// threaded into every entity at construction.
package fabric
