package dashboard

import "time"

// PurgeOffline removes dead workers from the snapshot when their most recent
// heartbeat is unknown or older than maxOffline. A non-positive maxOffline
// disables the filter. View-layer only: the source tables are untouched.
func PurgeOffline(workers map[string]Info, maxOffline time.Duration, now time.Time) {
	if maxOffline <= 0 {
		return
	}
	for name, info := range workers {
		alive := true
		if v, ok := info["status"].(bool); ok {
			alive = v
		}
		if alive {
			continue
		}
		last := LastHeartbeat(info)
		// A dead worker with no heartbeat history cannot prove recency.
		if last.IsZero() || now.Sub(last) > maxOffline {
			delete(workers, name)
		}
	}
}

// LastHeartbeat returns the most recent heartbeat timestamp recorded on the
// entry, or the zero time when the history is empty.
func LastHeartbeat(info Info) time.Time {
	var latest float64
	switch hb := info["heartbeats"].(type) {
	case []float64:
		for _, t := range hb {
			if t > latest {
				latest = t
			}
		}
	case []any:
		for _, v := range hb {
			if t, ok := v.(float64); ok && t > latest {
				latest = t
			}
		}
	}
	if latest == 0 {
		return time.Time{}
	}
	return time.Unix(int64(latest), 0)
}
