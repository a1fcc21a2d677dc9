// arcstress hammers the reference-counting protocol from many goroutines
// and checks that every record is destroyed exactly once.
//
// Usage:
//
//	arcstress                          # arc mode, 64 workers, 100 rounds
//	arcstress -mode arena -workers 8   # arena mode
//	arcstress -rounds 1000 -v          # print every round
//
// Each round builds one instrumented payload, lets every worker clone it
// once and drop its clone, drops the original, and expects exactly one
// destruction.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dacapoday/arc"
	"github.com/dacapoday/arc/arena"
	"golang.org/x/sync/errgroup"
)

type payload struct {
	writes []int
	drops  *atomic.Int64
}

func (p *payload) Drop() {
	p.drops.Add(1)
}

func main() {
	mode := flag.String("mode", "arc", "arc or arena")
	workers := flag.Int("workers", 64, "goroutines per round")
	rounds := flag.Int("rounds", 100, "number of rounds")
	verbose := flag.Bool("v", false, "print every round")
	flag.Parse()

	if *workers < 1 || *rounds < 1 {
		fmt.Fprintln(os.Stderr, "Usage: arcstress [-mode arc|arena] [-workers n] [-rounds n] [-v]")
		os.Exit(1)
	}

	var round func(ctx context.Context, workers int) (drops int64, err error)
	switch *mode {
	case "arc":
		round = runArc
	case "arena":
		var store arena.Arena[payload]
		round = func(ctx context.Context, workers int) (int64, error) {
			return runArena(ctx, &store, workers)
		}
	default:
		fmt.Fprintf(os.Stderr, "error: unknown mode %q\n", *mode)
		os.Exit(1)
	}

	start := time.Now()
	failed := 0
	for i := range *rounds {
		drops, err := round(context.Background(), *workers)
		if err == nil && drops != 1 {
			err = fmt.Errorf("%d destructions, want 1", drops)
		}
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "round %d: %v\n", i, err)
		} else if *verbose {
			fmt.Printf("round %d: ok\n", i)
		}
	}

	fmt.Printf("%s: %d rounds x %d workers, %d failed, %v\n",
		*mode, *rounds, *workers, failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		os.Exit(1)
	}
}

func runArc(ctx context.Context, workers int) (int64, error) {
	var drops atomic.Int64
	origin := arc.New(payload{writes: make([]int, workers), drops: &drops})

	g, ctx := errgroup.WithContext(ctx)
	for i := range workers {
		h := origin.Clone()
		g.Go(func() error {
			defer h.Drop()
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, ok := h.TryExclusive(); ok {
				return fmt.Errorf("worker %d: exclusive access while shared", i)
			}
			h.Get().writes[i] = i + 1
			return nil
		})
	}
	err := g.Wait()

	if n := origin.Count(); err == nil && n != 1 {
		err = fmt.Errorf("count %d after workers, want 1", n)
	}
	if val, ok := origin.TryExclusive(); err == nil && ok {
		err = checkWrites(val.writes)
	} else if err == nil {
		err = fmt.Errorf("no exclusive access after workers")
	}
	origin.Drop()
	return drops.Load(), err
}

func runArena(ctx context.Context, store *arena.Arena[payload], workers int) (int64, error) {
	var drops atomic.Int64
	origin := store.New(payload{writes: make([]int, workers), drops: &drops})

	g, ctx := errgroup.WithContext(ctx)
	for i := range workers {
		h, err := store.Clone(origin)
		if err != nil {
			g.Go(func() error { return err })
			break
		}
		g.Go(func() error {
			defer store.Drop(h)
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := store.Get(h)
			if err != nil {
				return err
			}
			val.writes[i] = i + 1
			return nil
		})
	}
	err := g.Wait()

	if err == nil {
		var val *payload
		var ok bool
		if val, ok, err = store.TryExclusive(origin); err == nil && !ok {
			err = fmt.Errorf("no exclusive access after workers")
		} else if err == nil {
			err = checkWrites(val.writes)
		}
	}
	if dropErr := store.Drop(origin); err == nil {
		err = dropErr
	}
	if n := store.Len(); err == nil && n != 0 {
		err = fmt.Errorf("%d live records after round, want 0", n)
	}
	return drops.Load(), err
}

func checkWrites(writes []int) error {
	for i, v := range writes {
		if v != i+1 {
			return fmt.Errorf("lost write at %d: got %d", i, v)
		}
	}
	return nil
}
