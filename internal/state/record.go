package state

// WorkerFields is the fixed attribute set a worker record may expose.
var WorkerFields = []string{
	"hostname", "pid", "freq", "heartbeats", "clock", "active",
	"processed", "loadavg", "sw_ident", "sw_ver", "sw_sys",
}

// WorkerRecord is the capability shared by the two record shapes the system
// sees: a structured record carrying the full named field set, or a loose
// attribute bag exposing an overlapping subset of the same names.
type WorkerRecord interface {
	// IsAlive reports the worker's liveness flag.
	IsAlive() bool
	// HeartbeatTimes returns the heartbeat history as unix timestamps,
	// oldest first. May be empty.
	HeartbeatTimes() []float64
	// Attrs returns the named attributes present on the record. Absent or
	// nil attributes are omitted from the result.
	Attrs(names []string) map[string]any
}

// Worker is the structured record maintained from worker-* events.
type Worker struct {
	Hostname   string
	Pid        int
	Freq       float64
	Clock      int64
	Active     int64
	Processed  int64
	Loadavg    []float64
	SwIdent    string
	SwVer      string
	SwSys      string
	Alive      bool
	Heartbeats []float64
}

func (w *Worker) IsAlive() bool { return w.Alive }

func (w *Worker) HeartbeatTimes() []float64 { return w.Heartbeats }

func (w *Worker) Attrs(names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		switch name {
		case "hostname":
			out[name] = w.Hostname
		case "pid":
			out[name] = w.Pid
		case "freq":
			out[name] = w.Freq
		case "heartbeats":
			out[name] = w.Heartbeats
		case "clock":
			out[name] = w.Clock
		case "active":
			out[name] = w.Active
		case "processed":
			out[name] = w.Processed
		case "loadavg":
			if w.Loadavg != nil {
				out[name] = w.Loadavg
			}
		case "sw_ident":
			out[name] = w.SwIdent
		case "sw_ver":
			out[name] = w.SwVer
		case "sw_sys":
			out[name] = w.SwSys
		}
	}
	return out
}

// snapshot returns a copy safe to hand to readers while the consumer keeps
// mutating the original under the state lock.
func (w *Worker) snapshot() *Worker {
	c := *w
	c.Loadavg = append([]float64(nil), w.Loadavg...)
	c.Heartbeats = append([]float64(nil), w.Heartbeats...)
	return &c
}

// LooseWorker is an attribute bag for workers learned outside the event
// feed, such as refresh replies decoded from arbitrary JSON objects.
type LooseWorker map[string]any

func (l LooseWorker) IsAlive() bool {
	alive, _ := l["alive"].(bool)
	return alive
}

func (l LooseWorker) HeartbeatTimes() []float64 {
	switch hb := l["heartbeats"].(type) {
	case []float64:
		return hb
	case []any:
		out := make([]float64, 0, len(hb))
		for _, v := range hb {
			if f, ok := asFloat(v); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

func (l LooseWorker) Attrs(names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := l[name]; ok && v != nil {
			out[name] = v
		}
	}
	return out
}

func (l LooseWorker) snapshot() LooseWorker {
	c := make(LooseWorker, len(l))
	for k, v := range l {
		c[k] = v
	}
	return c
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
