package sync

import (
	"context"
	stdsync "sync"
)

type syncWorker struct {
	ctx context.Context
	sem chan struct{}
	wg  stdsync.WaitGroup
}

func newSyncWorker(ctx context.Context, workers int) *syncWorker {
	if workers < 1 {
		workers = 1
	}
	return &syncWorker{
		ctx: ctx,
		sem: make(chan struct{}, workers),
	}
}

func (w *syncWorker) submit(fn func()) bool {
	select {
	case <-w.ctx.Done():
		return false
	default:
	}

	w.wg.Add(1)
	go func() {
		w.sem <- struct{}{}
		defer func() {
			<-w.sem
			w.wg.Done()
		}()
		fn()
	}()
	return true
}

func (w *syncWorker) wait() {
	w.wg.Wait()
}
