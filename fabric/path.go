package fabric

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelPath addresses a channel by its index below node, pipe and window.
type ChannelPath struct {
	Node, Pipe, Window, Channel int
}

// WindowPath addresses a window.
type WindowPath struct {
	Node, Pipe, Window int
}

// PipePath addresses a pipe.
type PipePath struct {
	Node, Pipe int
}

// SegmentPath addresses a segment of a canvas.
type SegmentPath struct {
	Canvas, Segment int
}

// ViewPath addresses a view of a layout.
type ViewPath struct {
	Layout, View int
}

func (p ChannelPath) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", p.Node, p.Pipe, p.Window, p.Channel)
}
func (p WindowPath) String() string  { return fmt.Sprintf("%d.%d.%d", p.Node, p.Pipe, p.Window) }
func (p PipePath) String() string    { return fmt.Sprintf("%d.%d", p.Node, p.Pipe) }
func (p SegmentPath) String() string { return fmt.Sprintf("%d.%d", p.Canvas, p.Segment) }
func (p ViewPath) String() string    { return fmt.Sprintf("%d.%d", p.Layout, p.View) }

// ParseIndexPath splits a dotted index path into its components.
func ParseIndexPath(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty index path")
	}
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid index path %q", s)
		}
		out[i] = v
	}
	return out, nil
}

// ParseChannelPath parses "node.pipe.window.channel".
func ParseChannelPath(s string) (ChannelPath, error) {
	idx, err := ParseIndexPath(s)
	if err != nil {
		return ChannelPath{}, err
	}
	if len(idx) != 4 {
		return ChannelPath{}, fmt.Errorf("channel path %q needs four indices", s)
	}
	return ChannelPath{idx[0], idx[1], idx[2], idx[3]}, nil
}
