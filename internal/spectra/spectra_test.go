package spectra

import (
	"math"
	"testing"
)

func TestDeriveParamsGrouping(t *testing.T) {
	brams := []string{"dout0_0", "dout0_1", "dout1_0", "dout1_1"}

	params, err := DeriveParams(brams, 2, 9, 8, 1080.0)
	if err != nil {
		t.Fatalf("DeriveParams failed: %v", err)
	}

	if params.BramsPerSpec != 2 {
		t.Errorf("BramsPerSpec = %d, want 2", params.BramsPerSpec)
	}
	if len(params.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(params.Groups))
	}

	// Groups must partition the input into contiguous slices in order.
	want := [][]string{{"dout0_0", "dout0_1"}, {"dout1_0", "dout1_1"}}
	for i, group := range params.Groups {
		if len(group) != len(want[i]) {
			t.Fatalf("group %d has %d brams, want %d", i, len(group), len(want[i]))
		}
		for j, name := range group {
			if name != want[i][j] {
				t.Errorf("group %d bram %d = %q, want %q", i, j, name, want[i][j])
			}
		}
	}

	if params.NChannels != 1024 {
		t.Errorf("NChannels = %d, want 1024", params.NChannels)
	}
}

func TestDeriveParamsRejectsUnevenSplit(t *testing.T) {
	brams := []string{"a", "b", "c"}
	if _, err := DeriveParams(brams, 2, 9, 8, 1080.0); err == nil {
		t.Error("DeriveParams with 3 brams over 2 spectra succeeded, want error")
	}
}

func TestDeriveParamsRejectsEmptyBramList(t *testing.T) {
	if _, err := DeriveParams(nil, 1, 9, 8, 1080.0); err == nil {
		t.Error("DeriveParams without brams succeeded, want error")
	}
}

func TestFrequencyAxis(t *testing.T) {
	params, err := DeriveParams([]string{"a"}, 1, 9, 8, 1080.0)
	if err != nil {
		t.Fatalf("DeriveParams failed: %v", err)
	}

	if len(params.Freqs) != params.NChannels {
		t.Fatalf("axis length = %d, want %d", len(params.Freqs), params.NChannels)
	}
	if params.Freqs[0] != 0 {
		t.Errorf("first value = %v, want 0", params.Freqs[0])
	}

	// Endpoint is exclusive.
	last := params.Freqs[len(params.Freqs)-1]
	if last >= 1080.0 {
		t.Errorf("last value = %v, want < 1080", last)
	}

	// Even spacing.
	step := params.Freqs[1] - params.Freqs[0]
	for i := 1; i < len(params.Freqs); i++ {
		if math.Abs((params.Freqs[i]-params.Freqs[i-1])-step) > 1e-9 {
			t.Fatalf("uneven spacing at channel %d", i)
		}
	}
}

func TestFullScaleReference(t *testing.T) {
	// nbits=8, 512 channels: 6.02*8 + 1.76 + 10*log10(512).
	params, err := DeriveParams([]string{"a"}, 1, 9, 8, 1080.0)
	if err != nil {
		t.Fatalf("DeriveParams failed: %v", err)
	}
	if params.NChannels != 512 {
		t.Fatalf("NChannels = %d, want 512", params.NChannels)
	}

	want := 6.02*8 + 1.76 + 10*math.Log10(512)
	if math.Abs(params.DBFS-want) > 1e-9 {
		t.Errorf("DBFS = %v, want %v", params.DBFS, want)
	}
	if math.Abs(params.DBFS-77.0127) > 1e-3 {
		t.Errorf("DBFS = %v, want about 77.0127", params.DBFS)
	}
}

func TestScaleDBFS(t *testing.T) {
	dbfs := 77.0
	got := ScaleDBFS([]float64{0, 65536}, 65536, dbfs)

	// Zero power scales to exactly -dBFS.
	if math.Abs(got[0]-(-dbfs)) > 1e-9 {
		t.Errorf("scaled zero = %v, want %v", got[0], -dbfs)
	}
	// acclen counts scale to 10*log10(2) - dBFS.
	want := 10*math.Log10(2) - dbfs
	if math.Abs(got[1]-want) > 1e-9 {
		t.Errorf("scaled acclen = %v, want %v", got[1], want)
	}
}

func TestScaleDBFSLeavesInputUntouched(t *testing.T) {
	in := []float64{100, 200}
	ScaleDBFS(in, 16, 50)
	if in[0] != 100 || in[1] != 200 {
		t.Errorf("input mutated: %v", in)
	}
}
