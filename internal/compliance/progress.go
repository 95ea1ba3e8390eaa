package compliance

import (
	"math"
	"time"

	"github.com/sswtrack/sswtrack/internal/rules"
)

// ItemState is the persisted completion state of one checklist item.
type ItemState struct {
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	CompletedBy string    `json:"completed_by,omitempty"`
}

// Checklist maps item ids to their persisted state. Items never toggled are
// simply absent.
type Checklist map[string]ItemState

// Checked flattens the checklist into item id -> completed.
func (c Checklist) Checked() map[string]bool {
	out := make(map[string]bool, len(c))
	for id, st := range c {
		out[id] = st.Completed
	}
	return out
}

// Progress summarises one phase.
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Complete reports whether every item of a non-empty phase is checked.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Completed >= p.Total
}

// ProgressOf counts the items of phase for which checked returns true.
func ProgressOf(phase rules.Phase, checked func(itemID string) bool) Progress {
	p := Progress{Total: len(phase.Items)}
	for _, it := range phase.Items {
		if checked(it.ID) {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percentage = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
	}
	return p
}

// PhaseProgress resolves each item as pending value (when present), then
// persisted completion, then false.
func PhaseProgress(phase rules.Phase, state Checklist, pending map[string]bool) Progress {
	return ProgressOf(phase, func(id string) bool {
		if v, ok := pending[id]; ok {
			return v
		}
		return state[id].Completed
	})
}

// DraftProgress computes progress as currently displayed by an edit draft.
func DraftProgress(phase rules.Phase, d *Draft[string, bool]) Progress {
	return ProgressOf(phase, func(id string) bool {
		v, _ := d.Get(id)
		return v
	})
}

// Locked reports whether phase is frozen: it locks on completion and its
// persisted state is complete. Pending edits never unlock or lock a phase.
func Locked(phase rules.Phase, state Checklist) bool {
	return phase.LockOnComplete && PhaseProgress(phase, state, nil).Complete()
}
