package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Timing summarizes how closely the recorded line transitions follow the
// bit grid.
type Timing struct {
	Transitions int

	// Deviation of each interval between transitions from the nearest whole
	// number of bit times, in bit times.
	MeanDeviation float64
	StdDeviation  float64
	MaxDeviation  float64

	// Longest interval without a transition, in bit times.
	LongestRun float64
}

// Analyze measures the transitions in segs against a Bit Time of
// cyclesPerBit. Only contiguous segments are compared; gaps where the lines
// were released start a new measurement.
func Analyze(segs []Segment, cyclesPerBit uint32) Timing {
	var intervals []float64
	for i := 1; i < len(segs); i++ {
		prev := segs[i-1]
		if prev.Start+prev.Cycles != segs[i].Start {
			continue
		}
		intervals = append(intervals, float64(prev.Cycles)/float64(cyclesPerBit))
	}

	t := Timing{Transitions: len(intervals)}
	if len(intervals) == 0 {
		return t
	}

	dev := make([]float64, len(intervals))
	for i, v := range intervals {
		dev[i] = math.Abs(v - math.Round(v))
	}
	t.MeanDeviation, t.StdDeviation = stat.MeanStdDev(dev, nil)
	if len(dev) < 2 {
		t.StdDeviation = 0
	}
	t.MaxDeviation = floats.Max(dev)
	t.LongestRun = floats.Max(intervals)
	return t
}
