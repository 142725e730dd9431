// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Carlo is a command that estimates π by parallel Monte Carlo
// sampling: points are drawn uniformly from the unit square, and the
// fraction falling inside the inscribed disk, scaled by the square's
// area, estimates π. Batches may be evaluated in-process, on forked
// subprocesses, or on an EC2 cluster.
//
//	carlo -n 1000000 -batches 100 -p 8
//	carlo -system ec2 -batches 10000 -checkpoint s3://bucket/carlo/ -resume
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/carlo"
	"github.com/grailbio/carlo/exec"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: carlo [flags]

Carlo estimates π by Monte Carlo sampling over independent batches.
Batches are evaluated in parallel by the configured system:

	local     in-process goroutines
	process   forked subprocesses via bigmachine
	ec2       an EC2 cluster via bigmachine

`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	var (
		n          = flag.Int64("n", 1000000, "number of samples per batch")
		j          = flag.Int("batches", 100, "number of batches")
		p          = flag.Int("p", runtime.NumCPU(), "target parallelism")
		seed       = flag.Int64("seed", 0, "random stream seed (0 seeds from the clock)")
		system     = flag.String("system", "local", "system on which batches are evaluated: local, process, or ec2")
		instance   = flag.String("instance", "m5.xlarge", "EC2 instance type for -system=ec2")
		checkpoint = flag.String("checkpoint", "", "checkpoint path prefix; may name an s3:// URL")
		every      = flag.Int("checkpoint-every", 100, "batches between checkpoints")
		resume     = flag.Bool("resume", false, "resume counts from a previous checkpoint")
		console    = flag.Bool("status", false, "display evaluation status on the console")
	)
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("carlo: ")
	must.Func = log.Fatal
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 0 {
		flag.Usage()
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	var stat status.Status
	options := []exec.Option{exec.Parallelism(*p), exec.Status(&stat)}
	switch *system {
	default:
		fmt.Fprintf(os.Stderr, "unknown system %s\n", *system)
		flag.Usage()
	case "local":
		options = append(options, exec.Local)
	case "process":
		options = append(options, exec.Bigmachine(bigmachine.Local))
	case "ec2":
		options = append(options, exec.Bigmachine(&ec2system.System{
			InstanceType: *instance,
		}))
	}

	ctx := context.Background()
	query := exec.Query{N: *n, J: *j, Domain: carlo.UnitSquare, Seed: *seed}
	var store exec.Store
	if *checkpoint != "" {
		store = exec.NewFileStore(*checkpoint)
		options = append(options, exec.Checkpointing(store, "counts", *every))
		if *resume {
			cp, err := store.Get(ctx, "counts")
			switch {
			case err == nil:
				log.Printf("resuming from checkpoint: %d/%d inside", cp.Inside, cp.Samples)
				query.Resume = cp
			case errors.Is(errors.NotExist, err):
				log.Printf("no checkpoint at %scounts; starting fresh", *checkpoint)
			default:
				log.Fatal(err)
			}
		}
	}

	sess := exec.Start(options...)
	defer sess.Shutdown()
	if *console {
		var reporter status.Reporter
		go reporter.Go(os.Stdout, &stat)
	}

	start := time.Now()
	res, err := sess.Run(ctx, query)
	must.Nil(err, "run")
	var (
		est     = res.Estimate()
		summary = res.Summary()
	)
	fmt.Printf("samples:  %d\n", res.Checkpoint().Samples)
	fmt.Printf("estimate: %f\n", est)
	fmt.Printf("error:    %f\n", math.Abs(est-math.Pi))
	fmt.Printf("stderr:   %f (%d batches)\n", summary.Stderr, summary.N)
	fmt.Printf("elapsed:  %s\n", time.Since(start))
}
