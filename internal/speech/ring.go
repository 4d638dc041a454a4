package speech

// ring keeps the most recent samples so an utterance can include the
// audio captured just before speech was detected.
type ring struct {
	buffer []int16
	head   int
	filled int
}

func newRing(size int) *ring {
	return &ring{buffer: make([]int16, size)}
}

func (r *ring) Add(samples []int16) {
	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)
		if r.filled < len(r.buffer) {
			r.filled++
		}
	}
}

// Read returns the buffered samples, oldest first.
func (r *ring) Read() []int16 {
	samples := make([]int16, r.filled)
	start := (r.head - r.filled + len(r.buffer)) % len(r.buffer)
	for i := 0; i < r.filled; i++ {
		samples[i] = r.buffer[(start+i)%len(r.buffer)]
	}
	return samples
}

func (r *ring) Clear() {
	for i := range r.buffer {
		r.buffer[i] = 0
	}
	r.head = 0
	r.filled = 0
}
