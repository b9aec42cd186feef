package camera

// Orientation of the preview relative to the sensor.
type Orientation int

const (
	Portrait Orientation = iota
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
)

func (o Orientation) String() string {
	switch o {
	case PortraitUpsideDown:
		return "portrait_upside_down"
	case LandscapeLeft:
		return "landscape_left"
	case LandscapeRight:
		return "landscape_right"
	default:
		return "portrait"
	}
}

// Preview is the visible preview rect a photo is captured through.
type Preview struct {
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
	Orientation Orientation `json:"orientation"`
}

// Valid reports whether the preview has a usable visible rect.
func (p Preview) Valid() bool {
	return p.Width > 0 && p.Height > 0
}

// Normalize converts a point in preview coordinates into a point of
// interest. The sensor is landscape-right native, so other orientations
// rotate the point before it reaches the device.
func (p Preview) Normalize(x, y float64) Point {
	if !p.Valid() {
		return Point{X: 0.5, Y: 0.5}
	}
	u, v := x/p.Width, y/p.Height

	var pt Point
	switch p.Orientation {
	case LandscapeRight:
		pt = Point{X: u, Y: v}
	case LandscapeLeft:
		pt = Point{X: 1 - u, Y: 1 - v}
	case PortraitUpsideDown:
		pt = Point{X: 1 - v, Y: u}
	default:
		pt = Point{X: v, Y: 1 - u}
	}
	return pt.Clamp()
}
