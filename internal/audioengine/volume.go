package audioengine

import "math"

// volumeToLinear converts a logarithmic-scale wire volume value (as sent by
// the virtualization protocol client, 0-65535) to a linear gain multiplier.
// The curve is fit so that v=0 is effectively silent and v=65535 is unity
// gain; it is not a simple dB conversion, it's lifted as-is from the
// reference implementation's calibration.
func volumeToLinear(v uint16) float32 {
	g := 9.3234e-7*math.Pow(1.000211902, float64(v)) - 0.000172787
	if g < 0 {
		g = 0
	}
	return float32(g)
}

// volumesToLinear converts a whole channel-volume array into a freshly
// allocated linear-gain slice, leaving the input untouched.
func volumesToLinear(volume []uint16) []float32 {
	out := make([]float32, len(volume))
	for i, v := range volume {
		out[i] = volumeToLinear(v)
	}
	return out
}
