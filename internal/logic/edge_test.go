package logic

import "testing"

func TestEdgeDetectorBaseline(t *testing.T) {
	d := NewEdgeDetector()
	if d.IsBaselined() {
		t.Error("new detector should not be baselined")
	}

	// Start held at boot is not a press
	edges := d.Process(Buttons{Start: true})
	if edges.Any() {
		t.Errorf("expected no edges on first sample, got %+v", edges)
	}
	if !d.IsBaselined() {
		t.Error("should be baselined after first sample")
	}

	// Still held: no edge
	if edges := d.Process(Buttons{Start: true}); edges.Any() {
		t.Errorf("expected no edges while held, got %+v", edges)
	}
}

func TestEdgeDetectorRisingEdgeOnce(t *testing.T) {
	d := NewEdgeDetector()
	d.Process(Buttons{})

	edges := d.Process(Buttons{Stop: true})
	if !edges.Stop || edges.Start || edges.Reset {
		t.Errorf("expected only Stop edge, got %+v", edges)
	}

	// Holding the button does not repeat the edge
	for i := 0; i < 5; i++ {
		if edges := d.Process(Buttons{Stop: true}); edges.Any() {
			t.Errorf("iteration %d: edge repeated while held: %+v", i, edges)
		}
	}

	// Release then press again
	d.Process(Buttons{})
	if edges := d.Process(Buttons{Stop: true}); !edges.Stop {
		t.Error("expected a new Stop edge after release")
	}
}

func TestEdgeDetectorFallingEdgeIgnored(t *testing.T) {
	d := NewEdgeDetector()
	d.Process(Buttons{Start: true, Stop: true, Reset: true})

	if edges := d.Process(Buttons{}); edges.Any() {
		t.Errorf("falling edges must not be reported, got %+v", edges)
	}
}

func TestEdgeDetectorSimultaneousEdges(t *testing.T) {
	d := NewEdgeDetector()
	d.Process(Buttons{})

	edges := d.Process(Buttons{Start: true, Stop: true, Reset: true})
	if !edges.Start || !edges.Stop || !edges.Reset {
		t.Errorf("expected all three edges, got %+v", edges)
	}
}
