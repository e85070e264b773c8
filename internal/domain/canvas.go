package domain

type Viewport struct {
	X int `json:"x" validate:"gte=0"`
	Y int `json:"y" validate:"gte=0"`
	W int `json:"w" validate:"gte=0"`
	H int `json:"h" validate:"gte=0"`
}

func (v Viewport) Empty() bool {
	return v.W <= 0 || v.H <= 0
}

type CanvasInfo struct {
	Width            int       `json:"width" validate:"gte=0"`
	Height           int       `json:"height" validate:"gte=0"`
	DevicePixelRatio float64   `json:"device_pixel_ratio,omitempty" validate:"gte=0"`
	Viewport         *Viewport `json:"viewport_info,omitempty"`
}

func (c CanvasInfo) PixelRatio() float64 {
	if c.DevicePixelRatio <= 0 {
		return 1
	}

	return c.DevicePixelRatio
}

// FullViewport covers the whole canvas when no explicit viewport is set.
func (c CanvasInfo) FullViewport() Viewport {
	if c.Viewport != nil {
		return *c.Viewport
	}

	return Viewport{W: c.Width, H: c.Height}
}
