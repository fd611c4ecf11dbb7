package agentmem

import (
	"sort"

	"github.com/youssefsiam38/agentmem/types"
)

// HistoryFilter narrows a GetFullHistory read. Zero-value fields are
// ignored.
type HistoryFilter struct {
	// MessageIDs keeps only entries whose message id is in the set.
	MessageIDs []string

	// SequenceFrom and SequenceTo bound the sequence range, inclusive.
	// Zero means unbounded on that side.
	SequenceFrom int
	SequenceTo   int

	// IsSummary, when non-nil, keeps only summary entries (true) or only
	// regular entries (false).
	IsSummary *bool

	// ArchivedBy keeps only entries archived by the given compaction
	// record id.
	ArchivedBy string
}

// HistoryOptions controls ordering and pagination of GetFullHistory.
type HistoryOptions struct {
	// Descending sorts by sequence descending. Default is ascending.
	Descending bool

	Offset int
	Limit  int
}

// GetFullHistory returns a session's history log filtered, sorted by
// sequence, and paginated. Entries are deep clones.
func (e *Engine) GetFullHistory(sessionID string, filter *HistoryFilter, opts *HistoryOptions) ([]types.HistoryMessage, error) {
	const op = "GetFullHistory"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	if _, ok := e.state.sessions[sessionID]; !ok {
		e.state.mu.RUnlock()
		return nil, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}

	var idSet map[string]struct{}
	if filter != nil && len(filter.MessageIDs) > 0 {
		idSet = make(map[string]struct{}, len(filter.MessageIDs))
		for _, id := range filter.MessageIDs {
			idSet[id] = struct{}{}
		}
	}

	history := e.state.histories[sessionID]
	out := make([]types.HistoryMessage, 0, len(history))
	for i := range history {
		entry := &history[i]
		if !historyMatches(entry, filter, idSet) {
			continue
		}
		out = append(out, entry.Clone())
	}
	e.state.mu.RUnlock()

	if opts != nil && opts.Descending {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	}

	if opts != nil {
		out = paginate(out, opts.Offset, opts.Limit)
	}
	return out, nil
}

func historyMatches(entry *types.HistoryMessage, filter *HistoryFilter, idSet map[string]struct{}) bool {
	if filter == nil {
		return true
	}
	if idSet != nil {
		if _, ok := idSet[entry.MessageID]; !ok {
			return false
		}
	}
	if filter.SequenceFrom > 0 && entry.Sequence < filter.SequenceFrom {
		return false
	}
	if filter.SequenceTo > 0 && entry.Sequence > filter.SequenceTo {
		return false
	}
	if filter.IsSummary != nil && entry.IsSummary != *filter.IsSummary {
		return false
	}
	if filter.ArchivedBy != "" && entry.ArchivedBy != filter.ArchivedBy {
		return false
	}
	return true
}
