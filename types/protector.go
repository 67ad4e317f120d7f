package types

// ProtectorSnapshot captures one protector cycle. Amps is negative while
// power is drawn from the upstream source.
type ProtectorSnapshot struct {
	Temperature0 float32
	Temperature1 float32

	Millivolts float64
	Amps       float64
	Watts      float64

	Vin VinState
}

// MaxTemperature returns the hotter of the two sensors.
func (s ProtectorSnapshot) MaxTemperature() float32 {
	if s.Temperature1 > s.Temperature0 {
		return s.Temperature1
	}
	return s.Temperature0
}
