// Package vad classifies PCM frames as speech or silence.
//
// The energy detector is stateless: the same samples always produce the same
// result. Alternative strategies (adaptive noise floor, model based) can be
// substituted behind the Detector interface without touching the session
// pipeline.
package vad

import (
	"fmt"
	"math"
)

// DefaultThreshold is the normalised energy at or above which a frame counts
// as speech.
const DefaultThreshold = 0.08

// fullScale normalises 16-bit amplitudes to [0,1].
const fullScale = 32768.0

// Result is the classification of a single frame.
type Result struct {
	IsSpeech bool
	Energy   float64
}

// Detector classifies frames. Implementations must not block.
type Detector interface {
	Classify(samples []int16) Result
}

// Measure selects how frame energy is computed.
type Measure int

const (
	// MeanAbsolute averages the absolute sample amplitude.
	MeanAbsolute Measure = iota
	// RMS is the root mean square of the samples.
	RMS
)

// String returns the string representation of the measure.
func (m Measure) String() string {
	switch m {
	case MeanAbsolute:
		return "mean_abs"
	case RMS:
		return "rms"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", m)
	}
}

// ParseMeasure maps a config string to a Measure, defaulting to MeanAbsolute.
func ParseMeasure(s string) Measure {
	switch s {
	case "rms", "RMS":
		return RMS
	default:
		return MeanAbsolute
	}
}

// EnergyDetector compares normalised frame energy against a fixed threshold.
type EnergyDetector struct {
	threshold float64
	measure   Measure
}

var _ Detector = (*EnergyDetector)(nil)

// NewEnergyDetector creates a detector. The threshold must lie in [0,1].
func NewEnergyDetector(threshold float64, measure Measure) (*EnergyDetector, error) {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("vad threshold must be between 0 and 1, got %f", threshold)
	}
	return &EnergyDetector{threshold: threshold, measure: measure}, nil
}

// Default returns a mean-absolute detector at DefaultThreshold.
func Default() *EnergyDetector {
	return &EnergyDetector{threshold: DefaultThreshold, measure: MeanAbsolute}
}

// Threshold returns the configured speech threshold.
func (d *EnergyDetector) Threshold() float64 {
	return d.threshold
}

// Classify computes the frame energy and compares it with the threshold.
// An empty or all-zero frame is silence with energy 0.
func (d *EnergyDetector) Classify(samples []int16) Result {
	energy := Energy(samples, d.measure)
	return Result{
		IsSpeech: energy > 0 && energy >= d.threshold,
		Energy:   energy,
	}
}

// Energy returns the normalised energy of samples in [0,1].
func Energy(samples []int16, m Measure) float64 {
	if len(samples) == 0 {
		return 0
	}

	var e float64
	switch m {
	case RMS:
		var sum float64
		for _, s := range samples {
			v := float64(s)
			sum += v * v
		}
		e = math.Sqrt(sum/float64(len(samples))) / fullScale
	default:
		var sum float64
		for _, s := range samples {
			sum += math.Abs(float64(s))
		}
		e = sum / float64(len(samples)) / fullScale
	}

	if e > 1 {
		e = 1
	}
	return e
}
