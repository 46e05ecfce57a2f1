package env

// Sample is one local box reading as served by the sensor node's
// /api/get_dht endpoint. Either field may be absent.
type Sample struct {
	Temperature *float64 `json:"temperature,omitempty"` // °C
	Humidity    *float64 `json:"humidity,omitempty"`    // %
}

// Empty reports whether the sample carries no reading at all.
func (s Sample) Empty() bool {
	return s.Temperature == nil && s.Humidity == nil
}
