package chain

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// checkInterval is how many nonces are tried between cancellation checks.
const checkInterval = 1024

// Mine searches nonces from zero until ProofHash(previousHash, chunks, nonce)
// meets Difficulty. The search is deterministic for identical input and
// stops early only when ctx is done.
func Mine(ctx context.Context, previousHash string, chunks []FileChunk) (uint64, error) {
	return mine(ctx, previousHash, chunks, nil)
}

func mine(ctx context.Context, previousHash string, chunks []FileChunk, stale func() bool) (uint64, error) {
	encoded, err := marshalCompact(cloneChunks(chunks))
	if err != nil {
		return 0, err
	}
	prefix := previousHash + string(encoded)

	var nonce uint64
	for {
		if nonce%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			if stale != nil && stale() {
				return 0, ErrStaleTip
			}
		}
		if strings.HasPrefix(HashHex(appendNonce(prefix, nonce)), Difficulty) {
			return nonce, nil
		}
		nonce++
	}
}

func appendNonce(prefix string, nonce uint64) []byte {
	buf := make([]byte, 0, len(prefix)+20)
	buf = append(buf, prefix...)
	return strconv.AppendUint(buf, nonce, 10)
}

// TipFunc reports the hash of the current chain tip.
type TipFunc func() string

type mineJob struct {
	ctx          context.Context
	previousHash string
	chunks       []FileChunk
	result       chan mineResult
}

type mineResult struct {
	proof uint64
	err   error
}

// Miner runs proof-of-work searches on a dedicated goroutine so request
// handlers only submit work and wait. A search is abandoned with
// ErrStaleTip as soon as the tip reported by TipFunc no longer matches the
// hash being mined on.
type Miner struct {
	tip  TipFunc
	jobs chan mineJob

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewMiner starts a miner worker. tip may be nil to disable stale-tip checks.
func NewMiner(tip TipFunc) *Miner {
	m := &Miner{
		tip:  tip,
		jobs: make(chan mineJob),
		done: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *Miner) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case job := <-m.jobs:
			start := time.Now()
			proof, err := mine(job.ctx, job.previousHash, job.chunks, m.staleFunc(job.previousHash))
			if err == nil {
				log.Debugw("proof found", "proof", proof, "tries", proof+1, "elapsed", time.Since(start))
			}
			job.result <- mineResult{proof: proof, err: err}
		}
	}
}

func (m *Miner) staleFunc(previousHash string) func() bool {
	if m.tip == nil {
		return nil
	}
	return func() bool {
		select {
		case <-m.done:
			return true
		default:
		}
		return m.tip() != previousHash
	}
}

// Submit queues a search on previousHash and blocks until it finishes,
// ctx is done, or the miner is closed.
func (m *Miner) Submit(ctx context.Context, previousHash string, chunks []FileChunk) (uint64, error) {
	job := mineJob{
		ctx:          ctx,
		previousHash: previousHash,
		chunks:       cloneChunks(chunks),
		result:       make(chan mineResult, 1),
	}

	select {
	case m.jobs <- job:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-m.done:
		return 0, ErrMinerClosed
	}

	select {
	case res := <-job.result:
		return res.proof, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close stops the worker and waits for it to exit.
func (m *Miner) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}
