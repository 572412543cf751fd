// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/keeperofkey/awesome-potato/pkg/signalgen"
)

const (
	testBlock      = 512
	testRate       = 48000.0
	testChannels   = 2
	testBinWidthHz = testRate / testBlock
)

func newTestAnalyzer(t testing.TB, tuning Tuning) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Options{
		SampleRate: testRate,
		BlockSize:  testBlock,
		Window:     Rectangular,
		Tuning:     tuning,
	})
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

func energyFrame(e float64) Frame {
	return Frame{Samples: signalgen.ForEnergy(testBlock, testChannels, e), Channels: testChannels}
}

// frameEnergy mirrors the float32 rounding a generated frame goes through.
func frameEnergy(e float64) float64 {
	v := float64(float32(math.Sqrt(e)))
	return v * v
}

func TestNewAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"zero rate", Options{SampleRate: 0, BlockSize: 512}},
		{"odd block", Options{SampleRate: 48000, BlockSize: 500}},
		{"negative history", Options{SampleRate: 48000, BlockSize: 512, HistorySize: -1}},
		{"bad threshold", Options{SampleRate: 48000, BlockSize: 512, Tuning: Tuning{PeakThreshold: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAnalyzer(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}

	a := newTestAnalyzer(t, Tuning{})
	if got := a.Tuning(); got != DefaultTuning() {
		t.Errorf("Tuning() = %+v, want defaults", got)
	}
	if got := len(a.EnergyHistory()); got != 0 {
		t.Errorf("history has %d values before the first frame", got)
	}
	if got := len(a.Last().Spectrum); got != testBlock/2+1 {
		t.Errorf("initial spectrum has %d bins, want %d", got, testBlock/2+1)
	}
}

func TestProcessSilence(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())
	frame := Frame{Samples: signalgen.Silence(testBlock, testChannels), Channels: testChannels}

	for i := 0; i < 100; i++ {
		s := a.Process(frame)
		if s.Volume != 0 || s.Peak || s.Beat {
			t.Fatalf("frame %d: volume=%v peak=%v beat=%v", i, s.Volume, s.Peak, s.Beat)
		}
		if len(s.Spectrum) != testBlock/2+1 {
			t.Fatalf("spectrum length %d, want %d", len(s.Spectrum), testBlock/2+1)
		}
		for bin, m := range s.Spectrum {
			if m != 0 {
				t.Fatalf("frame %d: spectrum[%d] = %v, want 0", i, bin, m)
			}
		}
	}
	if st := a.Stats(); st.Frames != 100 || st.Beats != 0 || st.Recovered != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestProcessPeakAgainstSeededHistory(t *testing.T) {
	const e0 = 1.0
	tests := []struct {
		name string
		e1   float64
	}{
		{"below", 1.2},
		{"above old mean only", 1.51},
		{"just above", 1.53},
		{"double", 2.0},
		{"silence", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, Tuning{PeakThreshold: 1.5, MinBeatInterval: 10})
			if s := a.Process(energyFrame(e0)); s.Peak {
				t.Fatal("first frame peaked against its own seed")
			}

			h := float64(DefaultHistorySize)
			got, want := frameEnergy(e0), frameEnergy(tt.e1)
			mean := ((h-1)*got + want) / h
			wantPeak := want > mean*1.5

			s := a.Process(energyFrame(tt.e1))
			if s.Peak != wantPeak {
				t.Errorf("peak = %v, want %v (energy %v, mean %v)", s.Peak, wantPeak, want, mean)
			}
			if s.Beat != wantPeak {
				t.Errorf("beat = %v, want %v on first peak", s.Beat, wantPeak)
			}
		})
	}
}

func TestProcessRepeatedPeakInsideRefractory(t *testing.T) {
	a := newTestAnalyzer(t, Tuning{PeakThreshold: 1.5, MinBeatInterval: 10})
	for i := 0; i < DefaultHistorySize; i++ {
		a.Process(energyFrame(1))
	}

	s := a.Process(energyFrame(2))
	if !s.Peak || !s.Beat {
		t.Fatalf("first loud frame: peak=%v beat=%v, want both", s.Peak, s.Beat)
	}
	s = a.Process(energyFrame(2))
	if !s.Peak {
		t.Error("second loud frame: expected peak")
	}
	if s.Beat {
		t.Error("second loud frame: beat inside refractory interval")
	}
	if got := a.Stats().Beats; got != 1 {
		t.Errorf("Stats().Beats = %d, want 1", got)
	}
}

func TestProcessBeatRefractory(t *testing.T) {
	const interval = 4
	a := newTestAnalyzer(t, Tuning{PeakThreshold: 1.5, MinBeatInterval: interval})

	lastBeat := -1
	for frame := 0; frame < 400; frame++ {
		e := 0.01
		if frame%3 == 0 {
			e = 1
		}
		s := a.Process(energyFrame(e))
		if !s.Beat {
			continue
		}
		if lastBeat >= 0 && frame < lastBeat+interval+1 {
			t.Fatalf("beat at %d follows beat at %d", frame, lastBeat)
		}
		lastBeat = frame
	}
	if lastBeat < 0 {
		t.Fatal("no beats detected")
	}
}

func TestProcessDownmix(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())

	mono := Frame{Samples: signalgen.Constant(testBlock, 1, 0.5), Channels: 1}
	if got := a.Process(mono).Volume; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("mono volume = %v, want 0.5", got)
	}

	// Left at 0.5 and right at -0.5 cancel out.
	stereo := make([]float32, testBlock*2)
	for i := 0; i < testBlock; i++ {
		stereo[2*i] = 0.5
		stereo[2*i+1] = -0.5
	}
	if got := a.Process(Frame{Samples: stereo, Channels: 2}).Volume; got != 0 {
		t.Errorf("cancelling stereo volume = %v, want 0", got)
	}
}

func TestProcessSpectrumPeak(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())
	const freq = 1000.0
	s := a.Process(Frame{Samples: signalgen.Sine(testBlock, testChannels, testRate, freq, 0.8), Channels: testChannels})

	bin := signalgen.FindPeakBin(s.Spectrum, 1, len(s.Spectrum))
	if got := a.BinFrequency(bin); math.Abs(got-freq) > testBinWidthHz {
		t.Errorf("peak at bin %d (%.1f Hz), want near %.0f Hz", bin, got, freq)
	}
	if s.Bands.Mid < 0.1 || s.Bands.Mid > 1 {
		t.Errorf("mid band %v out of range", s.Bands.Mid)
	}
}

func TestProcessRecoversFromBadFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"short", Frame{Samples: make([]float32, 10), Channels: 2}},
		{"no channels", Frame{Samples: make([]float32, testBlock), Channels: 0}},
		{"ragged", Frame{Samples: make([]float32, testBlock*2+1), Channels: 2}},
		{"nan", func() Frame {
			f := energyFrame(1)
			f.Samples[17] = float32(math.NaN())
			return f
		}()},
		{"inf", func() Frame {
			f := energyFrame(1)
			f.Samples[3] = float32(math.Inf(1))
			return f
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, Tuning{PeakThreshold: 1.5, MinBeatInterval: 10})
			a.Process(energyFrame(1))
			good := a.Process(energyFrame(4))
			if !good.Peak || !good.Beat {
				t.Fatalf("setup frame: peak=%v beat=%v", good.Peak, good.Beat)
			}

			s := a.Process(tt.frame)
			if s.Peak || s.Beat {
				t.Errorf("recovered snapshot has peak=%v beat=%v", s.Peak, s.Beat)
			}
			if s.Volume != good.Volume || s.Bands != good.Bands || len(s.Spectrum) != len(good.Spectrum) {
				t.Errorf("recovered snapshot %+v does not carry the previous values %+v", s, good)
			}
			if got := a.Stats().Recovered; got != 1 {
				t.Errorf("Stats().Recovered = %d, want 1", got)
			}
		})
	}
}

func TestFrameValidate(t *testing.T) {
	err := Frame{Samples: make([]float32, 8), Channels: 2}.Validate(16)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Validate() = %v, want ErrInvalidFrame", err)
	}
	if err := (Frame{Samples: make([]float32, 32), Channels: 2}).Validate(16); err != nil {
		t.Errorf("Validate() = %v for a well-formed frame", err)
	}
}

func TestProcessCountsOverruns(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())
	a.budget = -1 // every frame is over budget

	s := a.Process(energyFrame(0.3))
	st := a.Stats()
	if st.Overruns != 1 {
		t.Errorf("Overruns = %d, want 1", st.Overruns)
	}
	if st.Frames != 1 || s.Volume == 0 {
		t.Errorf("an overrun frame must still be analyzed: stats %+v, volume %v", st, s.Volume)
	}
}

func TestLastIsStable(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())
	s := a.Process(energyFrame(0.3))

	first, second := a.Last(), a.Last()
	if first.Seq != s.Seq || first.Volume != s.Volume || first.Peak != s.Peak {
		t.Errorf("Last() = %+v, want the processed snapshot %+v", first, s)
	}
	if first.Seq != second.Seq || first.Volume != second.Volume || first.Bands != second.Bands {
		t.Error("consecutive Last() calls differ")
	}
}

func TestSetTuning(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())
	if err := a.SetTuning(Tuning{PeakThreshold: 0, MinBeatInterval: 3}); err == nil {
		t.Error("SetTuning accepted a zero threshold")
	}
	want := Tuning{PeakThreshold: 1.8, MinBeatInterval: 3}
	if err := a.SetTuning(want); err != nil {
		t.Fatalf("SetTuning: %v", err)
	}
	if got := a.Tuning(); got != want {
		t.Errorf("Tuning() = %+v, want %+v", got, want)
	}
}

func TestProcessLevelInRange(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())
	for i := 0; i < 200; i++ {
		frame := Frame{Samples: signalgen.Sine(testBlock, testChannels, testRate, 220, float64(i%10)/10), Channels: testChannels}
		s := a.Process(frame)
		if s.Level < 0 || s.Level > 1 {
			t.Fatalf("frame %d: level %v out of [0, 1]", i, s.Level)
		}
	}
}

func TestProcessAllocs(t *testing.T) {
	a := newTestAnalyzer(t, DefaultTuning())
	frame := Frame{Samples: signalgen.Complex(testBlock, testChannels, testRate), Channels: testChannels}
	a.Process(frame)

	// The spectrum slice handed out with each snapshot is the only allocation.
	allocs := testing.AllocsPerRun(100, func() {
		a.Process(frame)
	})
	if allocs > 1 {
		t.Errorf("Expected at most 1 allocation per frame, got %.1f", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	a := newTestAnalyzer(b, DefaultTuning())
	frame := Frame{Samples: signalgen.Complex(testBlock, testChannels, testRate), Channels: testChannels}

	b.ReportAllocs()
	for b.Loop() {
		a.Process(frame)
	}
}
