package chroma

// Default keying parameters.
const (
	DefaultWhiteThreshold      = 0.85
	DefaultSaturationThreshold = 0.10
	DefaultTolerance           = 0.05
	DefaultSmoothing           = 0.10
)

// Options holds the four keying parameters. All values are expected in [0,1].
//
// Options is a plain value: the processor receives a copy per frame and never
// mutates it.
type Options struct {
	// WhiteThreshold is the minimum luminance for a pixel to be eligible as background.
	WhiteThreshold float64 `json:"whiteThreshold" yaml:"white_threshold" msgpack:"whiteThreshold"`

	// SaturationThreshold is the maximum saturation for a pixel to be eligible as background.
	SaturationThreshold float64 `json:"saturationThreshold" yaml:"saturation_threshold" msgpack:"saturationThreshold"`

	// Tolerance is the width of the luminance band below WhiteThreshold over
	// which subject pixels fade out instead of switching abruptly.
	Tolerance float64 `json:"tolerance" yaml:"tolerance" msgpack:"tolerance"`

	// Smoothing scales the alpha diffused into transparent pixels that
	// border opaque ones. Zero disables smoothing.
	Smoothing float64 `json:"smoothing" yaml:"smoothing" msgpack:"smoothing"`
}

// DefaultOptions returns the default keying parameters.
func DefaultOptions() Options {
	return Options{
		WhiteThreshold:      DefaultWhiteThreshold,
		SaturationThreshold: DefaultSaturationThreshold,
		Tolerance:           DefaultTolerance,
		Smoothing:           DefaultSmoothing,
	}
}
