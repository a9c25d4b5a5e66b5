package tracker

// Status tracks how fresh the nearest-station enrichment is
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSearching  Status = "searching"
	StatusRefreshing Status = "refreshing"
	StatusFound      Status = "found"
	StatusStale      Status = "stale"
	StatusNotFound   Status = "not_found"
)

// onCycleStart is applied when a cycle begins its station search.
// A background refresh leaves not_found alone so the sink keeps showing it.
func (s Status) onCycleStart(silent bool) Status {
	if !silent {
		return StatusSearching
	}
	if s == StatusNotFound {
		return StatusNotFound
	}
	return StatusRefreshing
}

// onStationResult is applied when the station search settles.
// found: the search returned a station. known: a station was already held
// from an earlier cycle.
func (s Status) onStationResult(found, known, silent bool) Status {
	switch {
	case found:
		return StatusFound
	case known:
		return StatusStale
	case !silent:
		return StatusNotFound
	case s == StatusNotFound:
		return StatusNotFound
	default:
		return StatusIdle
	}
}
