// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package carlo implements Monte Carlo area estimation: the area of a
	region embedded in a known bounding domain is estimated by drawing
	points uniformly from the domain and counting the fraction that
	fall within the region. The package estimates the area of the disk
	inscribed in a square domain; with the unit square this yields an
	estimator of π.

	Estimation decomposes into batches. A batch draws a fixed number of
	samples and reports the count of samples that landed inside the
	region; batches share no state, so they may be evaluated in any
	order, or concurrently, or on different machines, with their counts
	combined by summation. Package carlo makes the decomposition
	explicit: Estimate computes a single batch, while Aggregate
	combines many independent batches.

	Randomness is supplied by a Stream, which derives an independent,
	reproducible source for each batch from a single seed. Given a
	fixed stream, results are exactly reproducible regardless of how
	batches are scheduled.

	Package github.com/grailbio/carlo/exec runs batches through an
	executor abstraction, either in-process or distributed on a
	bigmachine cluster.
*/
package carlo
