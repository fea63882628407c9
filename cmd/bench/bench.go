package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/spacemeshos/puzzle-prover/puzzle"
	"github.com/spacemeshos/puzzle-prover/shared"
	"github.com/spacemeshos/puzzle-prover/signing"
)

type result struct {
	attempts  uint64
	solutions uint64
	failures  uint64
	elapsed   time.Duration
}

func (r result) rate() float64 {
	return float64(r.attempts) / r.elapsed.Seconds()
}

func main() {
	runtime.MemProfileRate = 0
	println("Memory profiling disabled.")

	cfg, err := loadConfig()
	if err != nil {
		os.Exit(1)
	}

	if cfg.CPU {
		dir, err := os.Getwd()
		if err != nil {
			log.Fatal("cant get current dir", err)
		}

		profFilePath := path.Join(dir, "./CPU.prof")
		fmt.Printf("CPU profile: %s\n", profFilePath)

		f, err := os.Create(profFilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()

		println("Cpu profiling enabled and started...")
	}

	id, err := signing.NewEphemeral(nil)
	if err != nil {
		log.Fatal("could not generate identity: ", err)
	}
	var epoch shared.EpochHash

	fmt.Printf("address: %s, difficulty: %d, duration per hash: %s\n", id.Address(), cfg.Difficulty, cfg.Duration)
	for _, algo := range cfg.Hashes {
		pz, err := puzzle.NewPowPuzzle(algo)
		if err != nil {
			log.Fatal("could not create puzzle: ", err)
		}
		r := run(pz, epoch, id.Address(), cfg.Difficulty, cfg.Duration)
		fmt.Printf("%-10s %12d attempts in %s (%.2f p/s), %d solutions, %d failures\n",
			algo, r.attempts, r.elapsed.Round(time.Millisecond), r.rate(), r.solutions, r.failures)
	}
}

// run attempts the puzzle on a single goroutine until d elapses.
func run(pz puzzle.Puzzle, epoch shared.EpochHash, address shared.Address, difficulty uint64, d time.Duration) result {
	var r result
	start := time.Now()
	for time.Since(start) < d {
		r.attempts++
		solution, err := pz.Prove(epoch, address, rand.Uint64())
		if err != nil {
			r.failures++
			continue
		}
		if solution.Target() >= difficulty {
			r.solutions++
		}
	}
	r.elapsed = time.Since(start)
	return r
}
