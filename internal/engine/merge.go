package engine

import (
	"context"
	"sync"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
)

// Merge fans several event streams into one so a single engine goroutine
// sees every event. The output closes once all inputs are closed or ctx
// is cancelled. Nil inputs are ignored.
func Merge(ctx context.Context, inputs ...<-chan domain.SpeechEvent) <-chan domain.SpeechEvent {
	out := make(chan domain.SpeechEvent)

	var wg sync.WaitGroup
	for _, in := range inputs {
		if in == nil {
			continue
		}
		wg.Add(1)
		go func(in <-chan domain.SpeechEvent) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}(in)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
