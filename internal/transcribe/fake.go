package transcribe

import (
	"context"
	"sync"
)

// FakeResponse is one scripted Transcribe result.
type FakeResponse struct {
	Text string
	Err  error
}

// Fake is a scripted Backend. Responses are consumed in order and the last
// one repeats; with no responses every call returns "".
type Fake struct {
	mu        sync.Mutex
	responses []FakeResponse
	calls     int
	payloads  [][]byte
	probeErr  error
	probes    int
	gate      chan struct{}
	entered   chan struct{}
}

// NewFake returns a Fake that plays responses in order.
func NewFake(responses ...FakeResponse) *Fake {
	return &Fake{responses: responses}
}

// Transcribe implements Backend.
func (f *Fake) Transcribe(ctx context.Context, wav []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	f.payloads = append(f.payloads, wav)
	gate, entered := f.gate, f.entered
	var resp FakeResponse
	if n := len(f.responses); n > 0 {
		resp = f.responses[0]
		if n > 1 {
			f.responses = f.responses[1:]
		}
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp.Text, resp.Err
}

// Probe implements Backend.
func (f *Fake) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

// SetProbeError sets the result of subsequent probes.
func (f *Fake) SetProbeError(err error) {
	f.mu.Lock()
	f.probeErr = err
	f.mu.Unlock()
}

// Block makes subsequent Transcribe calls wait until release is called or
// their context ends. entered receives once per blocked call.
func (f *Fake) Block() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 16)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

// Calls returns the number of Transcribe calls so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Probes returns the number of Probe calls so far.
func (f *Fake) Probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

// Payloads returns every payload passed to Transcribe.
func (f *Fake) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}
