// Package dashboard derives display views from the live fleet state.
package dashboard

import (
	"encoding/json"

	"github.com/marigold-hq/marigold/internal/state"
)

// Info is the full per-worker view: raw event counters merged with the
// record's attributes and a status flag.
type Info map[string]any

// BuildSnapshot assembles the full dashboard view. Counter entries whose
// worker is no longer in the registry are stale and skipped. Pure read;
// missing optional attributes are simply left out.
func BuildSnapshot(st *state.State) map[string]Info {
	workers := make(map[string]Info)
	for _, name := range st.CounterNames() {
		rec, ok := st.Worker(name)
		if !ok {
			continue
		}
		info := make(Info)
		for event, count := range st.Counters(name) {
			info[event] = count
		}
		for k, v := range rec.Attrs(state.WorkerFields) {
			info[k] = v
		}
		info["status"] = rec.IsAlive()
		workers[name] = info
	}
	return workers
}

// ActiveCount is a derived in-flight task count. Event loss or reordering
// can drive the derivation negative; those values render as "N/A".
type ActiveCount int64

func (a ActiveCount) MarshalJSON() ([]byte, error) {
	if a < 0 {
		return json.Marshal("N/A")
	}
	return json.Marshal(int64(a))
}

// Row is the compact per-worker entry pushed to update listeners.
type Row struct {
	Name      string      `json:"name"`
	Status    bool        `json:"status"`
	Active    ActiveCount `json:"active"`
	Processed int64       `json:"processed"`
	Failed    int64       `json:"failed"`
	Succeeded int64       `json:"succeeded"`
	Retried   int64       `json:"retried"`
	Loadavg   []float64   `json:"loadavg"`
}

// BuildUpdate computes the compact snapshot broadcast on each tick, one row
// per registered worker in name order.
func BuildUpdate(st *state.State) map[string]Row {
	rows := make(map[string]Row)
	for _, name := range st.WorkerNames() {
		rec, ok := st.Worker(name)
		if !ok {
			continue
		}
		counter := st.Counters(name)
		started := counter[state.EventTaskStarted]
		succeeded := counter[state.EventTaskSucceeded]
		failed := counter[state.EventTaskFailed]
		retried := counter[state.EventTaskRetried]

		rows[name] = Row{
			Name:      name,
			Status:    rec.IsAlive(),
			Active:    ActiveCount(started - succeeded - failed - retried),
			Processed: counter[state.EventTaskReceived],
			Failed:    failed,
			Succeeded: succeeded,
			Retried:   retried,
			Loadavg:   loadavgAttr(rec),
		}
	}
	return rows
}

// UpdatePayload marshals the compact snapshot as one JSON object keyed by
// worker name (map marshaling yields name-sorted keys). Returns nil when
// there are no workers to report.
func UpdatePayload(st *state.State) []byte {
	rows := BuildUpdate(st)
	if len(rows) == 0 {
		return nil
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil
	}
	return payload
}

func loadavgAttr(rec state.WorkerRecord) []float64 {
	v, ok := rec.Attrs([]string{"loadavg"})["loadavg"]
	if !ok {
		return nil
	}
	switch la := v.(type) {
	case []float64:
		return la
	case []any:
		out := make([]float64, 0, len(la))
		for _, e := range la {
			if f, ok := e.(float64); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}
