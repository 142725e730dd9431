// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package carlo

import (
	"context"
	"math"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
)

func TestEstimateBounds(t *testing.T) {
	fz := fuzz.New()
	d := UnitSquare
	for i := 0; i < 100; i++ {
		var seed int64
		fz.Fuzz(&seed)
		est, err := Estimate(100, d, NewStream(seed).Batch(0))
		if err != nil {
			t.Fatal(err)
		}
		if est < 0 || est > d.Area() {
			t.Errorf("seed %d: estimate %f out of [0, %f]", seed, est, d.Area())
		}
	}
}

func TestEstimateInvalid(t *testing.T) {
	for _, n := range []int64{0, -1, -100} {
		_, err := Estimate(n, UnitSquare, NewStream(0).Batch(0))
		if err == nil {
			t.Errorf("n=%d: expected error", n)
			continue
		}
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("n=%d: expected Invalid error, got %v", n, err)
		}
	}
}

// A single sample is either in or out of the disk, so an estimate
// over one sample must be exactly 0 or the full domain area.
func TestEstimateSingleSample(t *testing.T) {
	d := UnitSquare
	stream := NewStream(42)
	var zeros, fulls int
	for i := 0; i < 1000; i++ {
		est, err := Estimate(1, d, stream.Batch(i))
		if err != nil {
			t.Fatal(err)
		}
		switch est {
		case 0:
			zeros++
		case d.Area():
			fulls++
		default:
			t.Fatalf("batch %d: estimate %f is neither 0 nor %f", i, est, d.Area())
		}
	}
	// p = π/4 ≈ 0.785, so both outcomes occur in 1000 trials.
	if zeros == 0 || fulls == 0 {
		t.Errorf("degenerate outcome split: %d zeros, %d fulls", zeros, fulls)
	}
}

func TestEstimateDeterminism(t *testing.T) {
	stream := NewStream(1)
	first, err := Estimate(10000, UnitSquare, stream.Batch(0))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Estimate(10000, UnitSquare, stream.Batch(0))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("got %v, want %v", second, first)
	}
}

func TestEstimatePi(t *testing.T) {
	if testing.Short() {
		t.Skip("requires 1e6 samples")
	}
	est, err := Estimate(1000000, UnitSquare, NewStream(0).Batch(0))
	if err != nil {
		t.Fatal(err)
	}
	if est < 3.0 || est > 3.3 {
		t.Errorf("estimate %f implausibly far from π", est)
	}
}

// Sampling variance across repeated trials should shrink roughly as
// 1/n; with a 100x sample increase and a generous margin, the larger
// trials must have smaller spread.
func TestEstimateVariance(t *testing.T) {
	d := UnitSquare
	variance := func(n int64, trials int) float64 {
		stream := NewStream(99)
		ests := make([]float64, trials)
		var mean float64
		for i := range ests {
			est, err := Estimate(n, d, stream.Batch(i))
			if err != nil {
				t.Fatal(err)
			}
			ests[i] = est
			mean += est
		}
		mean /= float64(trials)
		var v float64
		for _, est := range ests {
			v += (est - mean) * (est - mean)
		}
		return v / float64(trials-1)
	}
	small, large := variance(100, 50), variance(10000, 50)
	if large >= small {
		t.Errorf("variance did not shrink: n=100: %g, n=10000: %g", small, large)
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	est, err := Aggregate(ctx, 1000, 100, UnitSquare, NewStream(0))
	if err != nil {
		t.Fatal(err)
	}
	if est < 3.0 || est > 3.3 {
		t.Errorf("estimate %f implausibly far from π", est)
	}
	// Scheduling must not affect the result.
	again, err := Aggregate(ctx, 1000, 100, UnitSquare, NewStream(0))
	if err != nil {
		t.Fatal(err)
	}
	if est != again {
		t.Errorf("got %v, want %v", again, est)
	}
}

func TestAggregateInvalid(t *testing.T) {
	ctx := context.Background()
	cases := []struct{ n, j int64 }{{0, 1}, {1, 0}, {-1, 1}, {1, -1}}
	for _, c := range cases {
		_, err := Aggregate(ctx, c.n, c.j, UnitSquare, NewStream(0))
		if err == nil || !errors.Is(errors.Invalid, err) {
			t.Errorf("n=%d, j=%d: expected Invalid error, got %v", c.n, c.j, err)
		}
	}
}

func TestAggregateCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Aggregate(ctx, 1000, 10, UnitSquare, NewStream(0))
	if got, want := err, context.Canceled; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// Summing inside counts over any partition of the batches must equal
// summing them all directly: the reduction is associative.
func TestAggregatePartition(t *testing.T) {
	const (
		n = 1000
		j = 10
	)
	d := UnitSquare
	stream := NewStream(7)
	counts := make([]int64, j)
	var total int64
	for i := range counts {
		counts[i] = d.Count(n, stream.Batch(i))
		total += counts[i]
	}
	for _, width := range []int{1, 2, 5, 10} {
		var grouped int64
		for lo := 0; lo < j; lo += width {
			var sub int64
			for i := lo; i < lo+width; i++ {
				sub += counts[i]
			}
			grouped += sub
		}
		if got, want := grouped, total; got != want {
			t.Errorf("width %d: got %v, want %v", width, got, want)
		}
	}
	est, err := Aggregate(context.Background(), n, j, d, stream)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := est, d.Area()*float64(total)/float64(n*j); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// Aggregate(n, j) and Estimate(n*j) estimate the same quantity; with
// matched total sample counts both should land near π.
func TestAggregateExpectation(t *testing.T) {
	if testing.Short() {
		t.Skip("requires 1e6 samples")
	}
	ctx := context.Background()
	agg, err := Aggregate(ctx, 10000, 100, UnitSquare, NewStream(3))
	if err != nil {
		t.Fatal(err)
	}
	est, err := Estimate(1000000, UnitSquare, NewStream(4).Batch(0))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(agg-math.Pi) > 0.15 || math.Abs(est-math.Pi) > 0.15 {
		t.Errorf("estimates diverge from π: aggregate %f, estimate %f", agg, est)
	}
}
