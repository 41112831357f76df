package registry

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned when requested generation parameters cannot be
// resolved against the model entry. Detect with errors.Is.
var ErrInvalidParams = errors.New("invalid generation parameters")

// Supported aspect ratios, applied to the model's default long edge.
var aspectRatios = map[string][2]int{
	"1:1":  {1, 1},
	"4:3":  {4, 3},
	"3:4":  {3, 4},
	"16:9": {16, 9},
	"9:16": {9, 16},
}

// ParamRequest is what the caller asked for; zero values mean "use the model
// default". Width/Height and AspectRatio are mutually exclusive.
type ParamRequest struct {
	Width       int
	Height      int
	AspectRatio string
	Steps       int
}

// Params are fully resolved generation parameters for one task.
type Params struct {
	Width  int
	Height int
	Steps  int
}

// ResolveParams fills defaults from the model entry and validates explicit
// values. Dimensions must be multiples of 8 within [256, max]; steps within
// [1, max].
func (r *Registry) ResolveParams(m Model, req ParamRequest) (Params, error) {
	p := Params{Width: m.DefaultWidth, Height: m.DefaultHeight, Steps: m.DefaultSteps}

	switch {
	case req.AspectRatio != "" && (req.Width != 0 || req.Height != 0):
		return Params{}, fmt.Errorf("%w: aspect_ratio and explicit dimensions are mutually exclusive", ErrInvalidParams)
	case req.AspectRatio != "":
		ratio, ok := aspectRatios[req.AspectRatio]
		if !ok {
			return Params{}, fmt.Errorf("%w: unsupported aspect_ratio %q", ErrInvalidParams, req.AspectRatio)
		}
		p.Width, p.Height = fitRatio(m, ratio)
	case req.Width != 0 || req.Height != 0:
		if req.Width <= 0 || req.Height <= 0 {
			return Params{}, fmt.Errorf("%w: width and height must both be set", ErrInvalidParams)
		}
		p.Width, p.Height = req.Width, req.Height
	}

	if err := checkDim("width", p.Width, m.MaxWidth); err != nil {
		return Params{}, err
	}
	if err := checkDim("height", p.Height, m.MaxHeight); err != nil {
		return Params{}, err
	}

	if req.Steps != 0 {
		if req.Steps < 1 || req.Steps > m.MaxSteps {
			return Params{}, fmt.Errorf("%w: steps %d outside [1, %d]", ErrInvalidParams, req.Steps, m.MaxSteps)
		}
		p.Steps = req.Steps
	}
	return p, nil
}

// fitRatio scales the ratio so the long edge matches the model default long
// edge, rounded down to a multiple of 8.
func fitRatio(m Model, ratio [2]int) (int, int) {
	long := m.DefaultWidth
	if m.DefaultHeight > long {
		long = m.DefaultHeight
	}
	w, h := ratio[0], ratio[1]
	var width, height int
	if w >= h {
		width = long
		height = long * h / w
	} else {
		height = long
		width = long * w / h
	}
	return width / 8 * 8, height / 8 * 8
}

func checkDim(name string, v, max int) error {
	if v < 256 || v > max {
		return fmt.Errorf("%w: %s %d outside [256, %d]", ErrInvalidParams, name, v, max)
	}
	if v%8 != 0 {
		return fmt.Errorf("%w: %s %d is not a multiple of 8", ErrInvalidParams, name, v)
	}
	return nil
}
