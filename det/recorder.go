package det

import "sync"

// Recorder keeps every report in memory. Useful in tests and for
// post-mortem dumps.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *Recorder) ReportError(module uint16, instance, service, code uint8) {
	r.mu.Lock()
	r.reports = append(r.reports, Report{Module: module, Instance: instance, Service: service, Error: code})
	r.mu.Unlock()
}

// Reports returns a copy of everything recorded so far.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Last returns the most recent report.
func (r *Recorder) Last() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		return Report{}, false
	}
	return r.reports[len(r.reports)-1], true
}

// Count returns how many reports carry the given service and error id.
func (r *Recorder) Count(service, code uint8) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.reports {
		if rep.Service == service && rep.Error == code {
			n++
		}
	}
	return n
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.reports = r.reports[:0]
	r.mu.Unlock()
}
