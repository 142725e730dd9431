// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package carlo

import "math/rand"

// A Domain is a square sampling domain [-R, R] x [-R, R] centered at
// the origin. The estimation target is the disk of radius R inscribed
// in the domain.
type Domain struct {
	// R is the domain's half side length, and also the radius of the
	// inscribed disk.
	R float64
}

// UnitSquare is the default sampling domain, with half side length 1.
// The inscribed disk has true area π, making UnitSquare estimates
// direct estimates of π.
var UnitSquare = Domain{R: 1}

// Area returns the area of the bounding square (2R)².
func (d Domain) Area() float64 {
	return 4 * d.R * d.R
}

// In tells whether the point (x, y) lies within the disk inscribed
// in d. Points on the disk's boundary are inside.
func (d Domain) In(x, y float64) bool {
	return x*x+y*y <= d.R*d.R
}

// Count draws n points uniformly from d and returns the number that
// fall within the inscribed disk. Count consumes exactly 2n draws
// from rng, so for a fixed source, counts are reproducible. Count
// panics if n is negative.
func (d Domain) Count(n int64, rng *rand.Rand) int64 {
	if n < 0 {
		panic("carlo: negative sample count")
	}
	var inside int64
	for i := int64(0); i < n; i++ {
		x := d.uniform(rng)
		y := d.uniform(rng)
		if d.In(x, y) {
			inside++
		}
	}
	return inside
}

// Uniform returns a single draw from the uniform distribution
// over [-R, R].
func (d Domain) uniform(rng *rand.Rand) float64 {
	return (2*rng.Float64() - 1) * d.R
}
