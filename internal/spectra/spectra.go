// Package spectra holds the pure derivations of the spectrometer: channel
// layout, frequency axis and dBFS scaling.
package spectra

import (
	"fmt"
	"math"
)

// Params are the values derived once from the configuration and shared
// read-only by the animation loop.
type Params struct {
	BramsPerSpec int        // Brams holding one spectrum
	Groups       [][]string // Bram names per spectrum, contiguous slices in input order
	NChannels    int        // Channels per spectrum
	Freqs        []float64  // Frequency axis in MHz, shared by every subplot
	DBFS         float64    // Full-scale reference in dB
}

// DeriveParams computes the channel layout for nspecs independent spectra
// spread over the named brams. The bram count must divide evenly by the
// spectra count; an uneven split is rejected rather than silently
// truncated.
func DeriveParams(bramnames []string, nspecs, awidth, nbits int, bandwidth float64) (Params, error) {
	if nspecs <= 0 {
		return Params{}, fmt.Errorf("number of spectra must be positive, got %d", nspecs)
	}
	if len(bramnames) == 0 {
		return Params{}, fmt.Errorf("no bram names given")
	}
	if len(bramnames)%nspecs != 0 {
		return Params{}, fmt.Errorf("number of bram names (%d) is not divisible by the number of spectra (%d)",
			len(bramnames), nspecs)
	}

	per := len(bramnames) / nspecs
	groups := make([][]string, nspecs)
	for i := range groups {
		groups[i] = bramnames[i*per : (i+1)*per]
	}

	nchannels := (1 << awidth) * per

	freqs := make([]float64, nchannels)
	for i := range freqs {
		freqs[i] = bandwidth * float64(i) / float64(nchannels)
	}

	// Standard ADC dynamic range plus FFT processing gain.
	dbfs := 6.02*float64(nbits) + 1.76 + 10*math.Log10(float64(nchannels))

	return Params{
		BramsPerSpec: per,
		Groups:       groups,
		NChannels:    nchannels,
		Freqs:        freqs,
		DBFS:         dbfs,
	}, nil
}

// ScaleDBFS converts raw accumulator values to power in dBFS. The input is
// left untouched.
func ScaleDBFS(data []float64, acclen int, dbfs float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = 10*math.Log10(v/float64(acclen)+1) - dbfs
	}
	return out
}
