// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segdata

import (
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/gomlx/vocseg/pkg/colormap"
	"github.com/gomlx/vocseg/pkg/images"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Loader groups the examples of a Source into mini-batches, generating them in parallel goroutines.
//
// Each epoch visits every example exactly once, optionally in shuffled order. Batches are yielded in
// the order they are completed, which with parallelism > 1 may differ from the order of the indices.
//
// Create it with NewLoader, configure it, and then call Start. To avoid leaking goroutines, call Close
// when done.
//
// Example:
//
//	loader := segdata.NewLoader(ds, 64).Shuffle(seed).Parallelism(4).Start()
//	defer loader.Close()
//	for {
//		batch, err := loader.Yield()
//		if err == io.EOF {
//			break
//		}
//		...
//	}
type Loader struct {
	src       Source
	batchSize int

	shuffle         bool
	dropIncomplete  bool
	parallelism     int
	extraBufferSize int
	seed            int64

	started bool

	// muEpoch protects the fields below.
	muEpoch sync.Mutex
	rng     *rand.Rand
	epoch   *loaderEpoch
	err     error
	closed  bool
}

type batchOrError struct {
	batch *Batch
	err   error
}

// loaderEpoch holds the goroutines state of one pass over the data.
type loaderEpoch struct {
	results  chan batchOrError
	stop     chan struct{}
	stopOnce sync.Once
}

func (e *loaderEpoch) cancel() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// NewLoader creates a Loader that yields batches of batchSize examples from src.
//
// Defaults: no shuffling, incomplete last batch yielded, parallelism equal to the number of cores.
func NewLoader(src Source, batchSize int) *Loader {
	return &Loader{
		src:         src,
		batchSize:   batchSize,
		parallelism: runtime.NumCPU(),
		seed:        time.Now().UTC().UnixNano(),
	}
}

func (l *Loader) checkNotStarted(method string) bool {
	if l.started {
		klog.Errorf("Loader.%s called after Start, configuration change ignored", method)
		return false
	}
	return true
}

// Shuffle configures the Loader to visit the examples in a new random order at every epoch, using the
// given seed. The seed also seeds the generators of the workers.
//
// It returns the Loader, so calls can be cascaded.
func (l *Loader) Shuffle(seed int64) *Loader {
	if l.checkNotStarted("Shuffle") {
		l.shuffle = true
		l.seed = seed
	}
	return l
}

// Seed sets the seed of the workers' random number generators, without shuffling.
//
// It returns the Loader, so calls can be cascaded.
func (l *Loader) Seed(seed int64) *Loader {
	if l.checkNotStarted("Seed") {
		l.seed = seed
	}
	return l
}

// Parallelism is the number of goroutines generating batches. If n <= 0 it uses the number of cores.
//
// It returns the Loader, so calls can be cascaded.
func (l *Loader) Parallelism(n int) *Loader {
	if l.checkNotStarted("Parallelism") {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		l.parallelism = n
	}
	return l
}

// Buffer sets the number of extra batches that can be generated ahead of the calls to Yield.
//
// It returns the Loader, so calls can be cascaded.
func (l *Loader) Buffer(n int) *Loader {
	if l.checkNotStarted("Buffer") {
		l.extraBufferSize = n
	}
	return l
}

// DropIncompleteBatch configures the Loader to skip the last batch of the epoch if it has fewer than
// batchSize examples.
//
// It returns the Loader, so calls can be cascaded.
func (l *Loader) DropIncompleteBatch() *Loader {
	if l.checkNotStarted("DropIncompleteBatch") {
		l.dropIncomplete = true
	}
	return l
}

// Start finishes the configuration and starts generating the batches of the first epoch.
//
// It returns the Loader, so calls can be cascaded.
func (l *Loader) Start() *Loader {
	l.muEpoch.Lock()
	defer l.muEpoch.Unlock()
	if l.started {
		klog.Errorf("Loader.Start called more than once")
		return l
	}
	l.started = true
	if l.batchSize <= 0 {
		l.err = errors.Errorf("Loader for %q: invalid batch size %d", l.Name(), l.batchSize)
		return l
	}
	l.rng = rand.New(rand.NewSource(l.seed))
	l.startEpoch()
	return l
}

// Name of the loader, derived from the source.
func (l *Loader) Name() string {
	if named, ok := l.src.(interface{ Name() string }); ok {
		return fmt.Sprintf("%s [Loader]", named.Name())
	}
	return "Loader"
}

// NumBatches per epoch.
func (l *Loader) NumBatches() int {
	if l.batchSize <= 0 {
		return 0
	}
	n := l.src.Len()
	if l.dropIncomplete {
		return n / l.batchSize
	}
	return (n + l.batchSize - 1) / l.batchSize
}

// startEpoch splits the (maybe shuffled) indices in batches and starts the workers.
// It must be called with muEpoch locked.
func (l *Loader) startEpoch() {
	var order []int
	if l.shuffle {
		order = l.rng.Perm(l.src.Len())
	} else {
		order = make([]int, l.src.Len())
		for ii := range order {
			order[ii] = ii
		}
	}
	jobs := make(chan []int, l.NumBatches())
	for start := 0; start < len(order); start += l.batchSize {
		end := min(start+l.batchSize, len(order))
		if end-start < l.batchSize && l.dropIncomplete {
			break
		}
		jobs <- order[start:end]
	}
	close(jobs)

	epoch := &loaderEpoch{
		results: make(chan batchOrError, l.extraBufferSize),
		stop:    make(chan struct{}),
	}
	l.epoch = epoch
	var wg sync.WaitGroup
	for range l.parallelism {
		wg.Add(1)
		workerRng := rand.New(rand.NewSource(l.rng.Int63()))
		go func() {
			defer wg.Done()
			for indices := range jobs {
				select {
				case <-epoch.stop:
					return
				default:
				}
				batch, err := l.assemble(workerRng, indices)
				select {
				case epoch.results <- batchOrError{batch: batch, err: err}:
				case <-epoch.stop:
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(epoch.results)
	}()
}

// assemble reads the examples of one batch.
func (l *Loader) assemble(rng *rand.Rand, indices []int) (*Batch, error) {
	randomSrc, hasRandom := l.src.(RandomSource)
	var batch *Batch
	for _, idx := range indices {
		var (
			feature  *images.Image
			labelMap *colormap.LabelMap
			err      error
		)
		if hasRandom {
			feature, labelMap, err = randomSrc.GetWithRand(rng, idx)
		} else {
			feature, labelMap, err = l.src.Get(idx)
		}
		if err == nil {
			if batch == nil {
				batch = newBatch(len(indices), feature.Size())
			}
			err = batch.append(idx, feature, labelMap)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "%s: while assembling batch", l.Name())
		}
	}
	return batch, nil
}

// Yield returns the next batch of the epoch, or io.EOF when the epoch is exhausted. Call Reset to
// start a new epoch.
//
// An error reading an example stops the epoch: it is returned by this and any later call until Reset.
func (l *Loader) Yield() (*Batch, error) {
	l.muEpoch.Lock()
	epoch, err := l.epoch, l.err
	l.muEpoch.Unlock()
	if err != nil {
		return nil, err
	}
	if epoch == nil {
		return nil, errors.Errorf("%s: Yield called before Start", l.Name())
	}
	result, ok := <-epoch.results
	if !ok {
		return nil, io.EOF
	}
	if result.err != nil {
		epoch.cancel()
		l.muEpoch.Lock()
		defer l.muEpoch.Unlock()
		if l.err == nil {
			l.err = result.err
		}
		return nil, l.err
	}
	return result.batch, nil
}

// Reset stops the current epoch, discarding batches not yet yielded, and starts a new one (reshuffled,
// if shuffling).
func (l *Loader) Reset() {
	l.muEpoch.Lock()
	defer l.muEpoch.Unlock()
	if !l.started {
		klog.Errorf("Loader.Reset called before Start")
		return
	}
	if l.closed {
		klog.Errorf("%s: Reset called after Close", l.Name())
		return
	}
	if l.batchSize <= 0 {
		return
	}
	l.stopEpoch()
	l.err = nil
	l.startEpoch()
}

// Close stops the goroutines. The Loader can't be used afterwards: Yield returns an error, and Reset
// does nothing.
func (l *Loader) Close() {
	l.muEpoch.Lock()
	defer l.muEpoch.Unlock()
	l.closed = true
	l.stopEpoch()
	l.err = errors.Errorf("%s: Loader closed", l.Name())
}

// stopEpoch cancels the current epoch and waits for its workers to finish.
// It must be called with muEpoch locked.
func (l *Loader) stopEpoch() {
	if l.epoch == nil {
		return
	}
	l.epoch.cancel()
	for range l.epoch.results {
		// Drain until all workers exited and the channel is closed.
	}
	l.epoch = nil
}
