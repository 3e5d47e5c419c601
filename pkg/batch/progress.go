package batch

// Progress describes how far a batch has advanced.
type Progress struct {
	// Percentage is completed chunks over total chunks, 0..100.
	Percentage float64

	// ProcessedItems approximates finished items as completedChunks*chunkSize,
	// capped at TotalItems.
	ProcessedItems int
	TotalItems     int

	CompletedChunks int
	TotalChunks     int
}

// ProgressFunc receives progress events. Calls are serialized, so the
// function does not need to be safe for concurrent use.
type ProgressFunc func(Progress)

// chunkProgress computes the event emitted after completed chunks finished.
func chunkProgress(completed, totalChunks, chunkSize, totalItems int) Progress {
	p := Progress{
		CompletedChunks: completed,
		TotalChunks:     totalChunks,
		TotalItems:      totalItems,
	}
	if totalChunks > 0 {
		p.Percentage = float64(completed) / float64(totalChunks) * 100
	}
	p.ProcessedItems = completed * chunkSize
	if p.ProcessedItems > totalItems {
		p.ProcessedItems = totalItems
	}
	return p
}

// finalProgress is the terminal 100% event.
func finalProgress(totalChunks, totalItems int) Progress {
	return Progress{
		Percentage:      100,
		ProcessedItems:  totalItems,
		TotalItems:      totalItems,
		CompletedChunks: totalChunks,
		TotalChunks:     totalChunks,
	}
}

// progressReporter forwards events from chunk workers to a single consumer
// goroutine that owns the callback.
type progressReporter struct {
	events chan Progress
	done   chan struct{}
}

func newProgressReporter(fn ProgressFunc, buffer int) *progressReporter {
	r := &progressReporter{
		events: make(chan Progress, buffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for p := range r.events {
			fn(p)
		}
	}()
	return r
}

func (r *progressReporter) report(p Progress) {
	r.events <- p
}

// close stops the reporter and waits for the last callback to return.
func (r *progressReporter) close() {
	close(r.events)
	<-r.done
}
