package loader

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

var (
	eyeNames = map[string]uint32{
		"cyclop": uint32(fabric.EyeCyclop),
		"left":   uint32(fabric.EyeLeft),
		"right":  uint32(fabric.EyeRight),
		"stereo": uint32(fabric.EyesStereo),
		"all":    uint32(fabric.EyesAll),
	}
	taskNames = map[string]uint32{
		"clear":    uint32(fabric.TaskClear),
		"cull":     uint32(fabric.TaskCull),
		"draw":     uint32(fabric.TaskDraw),
		"assemble": uint32(fabric.TaskAssemble),
		"readback": uint32(fabric.TaskReadback),
		"view":     uint32(fabric.TaskView),
		"all":      uint32(fabric.TaskAll),
	}
	bufferNames = map[string]uint32{
		"color": uint32(fabric.BufferColor),
		"depth": uint32(fabric.BufferDepth),
	}
)

// parseMask ors the bits named in list.
func parseMask(what string, names map[string]uint32, list []string) (uint32, error) {
	var mask uint32
	for _, name := range list {
		bit, ok := names[strings.ToLower(name)]
		if !ok {
			return 0, errors.Errorf("unknown %s %q", what, name)
		}
		mask |= bit
	}
	return mask, nil
}

func parseEyes(list []string) (fabric.Eye, error) {
	mask, err := parseMask("eye", eyeNames, list)
	return fabric.Eye(mask), err
}

func parseTasks(list []string) (fabric.Task, error) {
	mask, err := parseMask("task", taskNames, list)
	return fabric.Task(mask), err
}

func parseBuffers(list []string) (fabric.Buffer, error) {
	mask, err := parseMask("buffer", bufferNames, list)
	return fabric.Buffer(mask), err
}

func parseIAttr(s string) (fabric.IAttr, error) {
	switch strings.ToLower(s) {
	case "":
		return fabric.Undefined, nil
	case "on":
		return fabric.On, nil
	case "off":
		return fabric.Off, nil
	case "auto":
		return fabric.Auto, nil
	}
	return fabric.Undefined, errors.Errorf("unknown value %q, want on, off or auto", s)
}

func parseStereoMode(s string) (fabric.StereoMode, error) {
	switch strings.ToLower(s) {
	case "":
		return fabric.StereoUndefined, nil
	case "auto":
		return fabric.StereoAuto, nil
	case "mono":
		return fabric.StereoMono, nil
	case "quad":
		return fabric.StereoQuad, nil
	case "anaglyph":
		return fabric.StereoAnaglyph, nil
	case "passive":
		return fabric.StereoPassive, nil
	}
	return fabric.StereoUndefined, errors.Errorf("unknown stereo mode %q", s)
}

func parseStorage(s string, def fabric.FrameStorage) (fabric.FrameStorage, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "memory":
		return fabric.StorageMemory, nil
	case "texture":
		return fabric.StorageTexture, nil
	}
	return def, errors.Errorf("unknown frame storage %q", s)
}

func parseThreadModel(s string) (resources.ThreadModel, error) {
	switch strings.ToLower(s) {
	case "":
		return resources.ThreadModelUndefined, nil
	case "async":
		return resources.ThreadModelAsync, nil
	case "draw_sync":
		return resources.ThreadModelDrawSync, nil
	case "local_sync":
		return resources.ThreadModelLocalSync, nil
	}
	return resources.ThreadModelUndefined, errors.Errorf("unknown thread model %q", s)
}

func parseViewMode(s string) (resources.ViewMode, error) {
	switch strings.ToLower(s) {
	case "", "mono":
		return resources.ViewMono, nil
	case "stereo":
		return resources.ViewStereo, nil
	}
	return resources.ViewMono, errors.Errorf("unknown view mode %q", s)
}

// floats checks that v holds n numbers.
func floats(what string, v []float64, n int) ([]float64, error) {
	if len(v) != n {
		return nil, errors.Errorf("%s needs %d values, got %d", what, n, len(v))
	}
	return v, nil
}

func viewport(v []float64) (fabric.Viewport, error) {
	f, err := floats("viewport", v, 4)
	if err != nil {
		return fabric.Viewport{}, err
	}
	vp := fabric.Viewport{X: float32(f[0]), Y: float32(f[1]), W: float32(f[2]), H: float32(f[3])}
	if !vp.IsValid() {
		return vp, errors.Errorf("invalid viewport %v", vp)
	}
	return vp, nil
}

func pixelViewport(v []float64) (fabric.PixelViewport, error) {
	f, err := floats("pixel viewport", v, 4)
	if err != nil {
		return fabric.PixelViewport{}, err
	}
	return fabric.PixelViewport{X: int32(f[0]), Y: int32(f[1]), W: int32(f[2]), H: int32(f[3])}, nil
}

func vector2i(what string, v []float64) (fabric.Vector2i, error) {
	f, err := floats(what, v, 2)
	if err != nil {
		return fabric.Vector2i{}, err
	}
	return fabric.Vector2i{X: int32(f[0]), Y: int32(f[1])}, nil
}

func vector3(what string, v []float64) (fabric.Vector3, error) {
	f, err := floats(what, v, 3)
	if err != nil {
		return fabric.Vector3{}, err
	}
	return fabric.Vector3{X: float32(f[0]), Y: float32(f[1]), Z: float32(f[2])}, nil
}

func zoom(v []float64) (fabric.Zoom, error) {
	f, err := floats("zoom", v, 2)
	if err != nil {
		return fabric.ZoomInvalid, err
	}
	return fabric.Zoom{X: float32(f[0]), Y: float32(f[1])}, nil
}

func (w *wallBlock) wall() (fabric.Wall, error) {
	var wall fabric.Wall
	var err error
	if wall.BottomLeft, err = vector3("bottom_left", w.BottomLeft); err != nil {
		return wall, err
	}
	if wall.BottomRight, err = vector3("bottom_right", w.BottomRight); err != nil {
		return wall, err
	}
	if wall.TopLeft, err = vector3("top_left", w.TopLeft); err != nil {
		return wall, err
	}
	switch strings.ToLower(w.Type) {
	case "", "fixed":
		wall.Type = fabric.WallFixed
	case "hmd":
		wall.Type = fabric.WallHMD
	default:
		return wall, errors.Errorf("unknown wall type %q", w.Type)
	}
	return wall, nil
}

func (p *projectionBlock) projection() (fabric.Projection, error) {
	proj := fabric.Projection{Distance: float32(p.Distance)}
	if p.Origin != nil {
		origin, err := vector3("origin", p.Origin)
		if err != nil {
			return proj, err
		}
		proj.Origin = origin
	}
	fov, err := floats("fov", p.FOV, 2)
	if err != nil {
		return proj, err
	}
	proj.FOV = [2]float32{float32(fov[0]), float32(fov[1])}
	if p.HPR != nil {
		hpr, err := floats("hpr", p.HPR, 3)
		if err != nil {
			return proj, err
		}
		proj.HPR = [3]float32{float32(hpr[0]), float32(hpr[1]), float32(hpr[2])}
	}
	return proj, nil
}

// frustumTarget is anything a wall or projection block configures.
type frustumTarget interface {
	SetWall(fabric.Wall)
	SetProjection(fabric.Projection)
}

func applyFrustum(t frustumTarget, wall *wallBlock, proj *projectionBlock) error {
	if wall != nil && proj != nil {
		return errors.New("wall and projection are exclusive")
	}
	if wall != nil {
		w, err := wall.wall()
		if err != nil {
			return errors.Wrap(err, "wall")
		}
		t.SetWall(w)
	}
	if proj != nil {
		p, err := proj.projection()
		if err != nil {
			return errors.Wrap(err, "projection")
		}
		t.SetProjection(p)
	}
	return nil
}

// equalizerParams overrides the session's load-balancing defaults with the
// attributes of an equalizer block. A boundary or resistance given as a
// pair applies to 2D splits, a single number to DB splits.
func equalizerParams(body hcl.Body, p compound.Params) (compound.Params, map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return p, nil, diags
	}
	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return p, nil, diags
		}
		values[name] = v
	}

	for name, v := range values {
		var err error
		switch name {
		case "damping":
			err = ctyFloat32(v, &p.Damping)
		case "assemble_only_limit":
			err = ctyFloat32(v, &p.AssembleOnlyLimit)
		case "frame_rate":
			err = ctyFloat32(v, &p.FrameRate)
		case "boundary":
			err = ctyPairOrScalar(v, &p.Boundary2i, &p.Boundaryf)
		case "resistance":
			err = ctyPairOrScalar(v, &p.Resistance2i, &p.Resistancef)
		case "tile_size":
			var pair []float64
			if pair, err = ctyNumbers(v); err == nil {
				p.TileSize, err = vector2i("tile_size", pair)
			}
		case "mode":
			var s string
			if s, err = ctyString(v); err == nil {
				mode, ok := fabric.ParseDecompositionMode(s)
				if !ok {
					err = errors.Errorf("unknown mode %q", s)
				}
				p.Mode = mode
			}
		case "name":
		default:
			err = errors.New("unknown attribute")
		}
		if err != nil {
			return p, nil, errors.Wrapf(err, "equalizer attribute %s", name)
		}
	}
	return p, values, nil
}

// ctyNumbers reads a list or tuple of numbers.
func ctyNumbers(v cty.Value) ([]float64, error) {
	list, err := convert.Convert(v, cty.List(cty.Number))
	if err != nil {
		return nil, err
	}
	var out []float64
	if err := gocty.FromCtyValue(list, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func ctyString(v cty.Value) (string, error) {
	str, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	var out string
	err = gocty.FromCtyValue(str, &out)
	return out, err
}

func ctyFloat32(v cty.Value, out *float32) error {
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return err
	}
	*out = float32(f)
	return nil
}

func ctyPairOrScalar(v cty.Value, pair *fabric.Vector2i, scalar *float32) error {
	if v.Type() == cty.Number {
		return ctyFloat32(v, scalar)
	}
	list, err := ctyNumbers(v)
	if err != nil {
		return err
	}
	p, err := vector2i("pair", list)
	if err != nil {
		return err
	}
	*pair = p
	return nil
}
