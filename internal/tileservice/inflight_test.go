package tileservice

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinCoalescesConcurrentCallersIntoOneRender(t *testing.T) {
	table := newInflightTable()
	key := Key{DatasetPath: "p#HH", Row: 1, Col: 1}

	var renderCalls int32
	started := make(chan struct{})
	release := make(chan struct{})

	render := func(ctx context.Context) (*Tile, error) {
		atomic.AddInt32(&renderCalls, 1)
		close(started)
		<-release
		return &Tile{Key: key}, nil
	}

	var wg sync.WaitGroup
	results := make([]*Tile, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tile, err := table.join(context.Background(), key, render)
			require.NoError(t, err)
			results[i] = tile
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond) // let the other joiners attach as waiters
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, renderCalls)
	for _, tile := range results {
		assert.Same(t, results[0], tile)
	}
}

func TestJoinLeavingWaiterDoesNotCancelOthers(t *testing.T) {
	table := newInflightTable()
	key := Key{DatasetPath: "p#HH"}

	renderStarted := make(chan struct{})
	var sawCancel int32

	render := func(ctx context.Context) (*Tile, error) {
		close(renderStarted)
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&sawCancel, 1)
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return &Tile{Key: key}, nil
		}
	}

	cancelledCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		table.join(cancelledCtx, key, render)
	}()

	<-renderStarted

	patientResult := make(chan *Tile, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tile, err := table.join(context.Background(), key, render)
		require.NoError(t, err)
		patientResult <- tile
	}()

	time.Sleep(10 * time.Millisecond)
	cancel() // the impatient waiter leaves early
	wg.Wait()

	assert.EqualValues(t, 0, atomic.LoadInt32(&sawCancel), "render should not be cancelled while a waiter remains")
	select {
	case tile := <-patientResult:
		assert.Equal(t, key, tile.Key)
	default:
		t.Fatal("patient waiter never received a result")
	}
}

func TestJoinCancelsRenderWhenLastWaiterLeaves(t *testing.T) {
	table := newInflightTable()
	key := Key{DatasetPath: "p#HH"}

	renderStarted := make(chan struct{})
	cancelled := make(chan struct{})

	render := func(ctx context.Context) (*Tile, error) {
		close(renderStarted)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		table.join(ctx, key, render)
		close(done)
	}()

	<-renderStarted
	cancel()
	<-done

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("render was never cancelled after its only waiter left")
	}
}
