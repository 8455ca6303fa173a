package intake

import "time"

// progressRotator emits a rotating label stream while a generation call is
// in flight. It is an explicit start/stop handle owned by the transition
// that started it: Stop waits for the goroutine to exit, so no further
// labels are emitted after Stop returns and no timer is leaked across
// repeated generate cycles.
type progressRotator struct {
	stop chan struct{}
	done chan struct{}
}

// startProgress begins emitting labels. The first label is emitted
// immediately, then the rotation advances every interval, wrapping around.
// onTick may be nil, in which case nothing runs.
func startProgress(labels []string, interval time.Duration, onTick func(string)) *progressRotator {
	r := &progressRotator{stop: make(chan struct{}), done: make(chan struct{})}
	if onTick == nil || len(labels) == 0 {
		close(r.done)
		return r
	}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		i := 0
		onTick(labels[i])
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				i = (i + 1) % len(labels)
				onTick(labels[i])
			}
		}
	}()
	return r
}

// Stop halts the rotation and blocks until the last emit has finished.
func (r *progressRotator) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}
