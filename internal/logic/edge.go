package logic

// EdgeDetector turns button samples into rising edges.
// The first sample only establishes the baseline, so a button held down
// while the controller boots does not count as a press.
type EdgeDetector struct {
	prev      Buttons
	baselined bool
}

// NewEdgeDetector creates an edge detector with no baseline.
func NewEdgeDetector() *EdgeDetector {
	return &EdgeDetector{}
}

// Process takes a new sample and returns the buttons that went from
// released to pressed since the previous sample.
func (d *EdgeDetector) Process(sample Buttons) Buttons {
	if !d.baselined {
		d.prev = sample
		d.baselined = true
		return Buttons{}
	}

	edges := Buttons{
		Start: sample.Start && !d.prev.Start,
		Stop:  sample.Stop && !d.prev.Stop,
		Reset: sample.Reset && !d.prev.Reset,
	}
	d.prev = sample
	return edges
}

// IsBaselined returns whether a first sample has been seen.
func (d *EdgeDetector) IsBaselined() bool {
	return d.baselined
}
