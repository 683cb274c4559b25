// Package withdraw tracks the per-chain FIFO queue of pending outbound
// transfers created by user withdrawals, drained in bounded batches by the
// withdraw executor (see ExecuteChain in executor.go).
package withdraw

import (
	"math/big"
	"sync"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/ethereum/go-ethereum/common"
)

// BatchSize is the maximum number of transfers flushed through a single
// multitransfer call.
const BatchSize = 100

// Request is one queued outbound transfer.
type Request struct {
	Amount   *big.Int
	Receiver common.Address
}

// Queue is the chain_id -> []Request FIFO store.
type Queue struct {
	mu      sync.Mutex
	byChain map[string][]Request
}

// New returns an empty withdraw queue.
func New() *Queue {
	return &Queue{byChain: make(map[string][]Request)}
}

// InitChain creates the (empty) queue bucket for a newly registered chain.
func (q *Queue) InitChain(chainID *big.Int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := chainID.String()
	if _, exists := q.byChain[key]; !exists {
		q.byChain[key] = nil
	}
}

// DeinitChain discards a chain's queue entirely, used when a chain is
// deregistered.
func (q *Queue) DeinitChain(chainID *big.Int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.byChain, chainID.String())
}

// Push appends a withdraw request to chainID's queue.
func (q *Queue) Push(chainID *big.Int, req Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := chainID.String()
	if _, exists := q.byChain[key]; !exists {
		return domainerr.ErrChainNotFound
	}
	q.byChain[key] = append(q.byChain[key], req)
	return nil
}

// Peek returns a defensive copy of chainID's queue, oldest first, without
// draining it.
func (q *Queue) Peek(chainID *big.Int) []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Request(nil), q.byChain[chainID.String()]...)
}

// IsEmpty reports whether chainID has no pending withdraw requests.
func (q *Queue) IsEmpty(chainID *big.Int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byChain[chainID.String()]) == 0
}

// Chains returns every chain id currently tracked, including those with an
// empty queue.
func (q *Queue) Chains() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.byChain))
	for key := range q.byChain {
		out = append(out, key)
	}
	return out
}

// PopFront removes the first n requests from chainID's queue, used by the
// executor after a window of transfers has landed on chain: only the
// landed portion is dropped, so a later window's transport failure leaves
// the rest of the queue intact for the next tick.
func (q *Queue) PopFront(chainID *big.Int, n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := chainID.String()
	queue := q.byChain[key]
	if n >= len(queue) {
		q.byChain[key] = nil
		return
	}
	q.byChain[key] = append([]Request(nil), queue[n:]...)
}

// Batches splits chainID's current queue into windows of at most BatchSize
// requests. It does not drain the queue; the executor pops each window via
// PopFront only after that window's transaction lands.
func (q *Queue) Batches(chainID *big.Int) [][]Request {
	all := q.Peek(chainID)
	if len(all) == 0 {
		return nil
	}
	var batches [][]Request
	for len(all) > 0 {
		n := BatchSize
		if n > len(all) {
			n = len(all)
		}
		batches = append(batches, all[:n])
		all = all[n:]
	}
	return batches
}
