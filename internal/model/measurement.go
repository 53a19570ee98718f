package model

// BatchCapacity is the number of samples collected before a batched payload
// is flushed to the broker.
const BatchCapacity = 60

// Measurement is a single sensor capture. Both fields are rounded to two
// decimal places at capture time; downstream consumers rely on that precision.
type Measurement struct {
	Temperature float64 `json:"temperature"` // °C
	Pressure    float64 `json:"pressure"`    // hPa
}

// Batch aggregates consecutive measurements into one payload to reduce
// transport overhead. Temperatures and Pressures are kept in capture order
// and always have equal length, at most BatchCapacity.
type Batch struct {
	Temperatures []float64 `json:"temperature"`
	Pressures    []float64 `json:"pressure"`
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Temperatures)
}
