package workflow

import (
	"fmt"
	"strings"

	"github.com/songzhibin97/jadwal-engine/types"
)

// Guard expressions evaluated per record.
const (
	GuardAdmin        = "is_admin"
	GuardKaprodiMajor = "is_kaprodi && actor_major == record_major"
)

// transition describes what an event may do to a record.
type transition struct {
	from  []types.Status // empty means any status
	to    types.Status   // empty leaves the status untouched
	guard string
}

var transitions = map[types.Event]transition{
	types.EventCreate:          {guard: GuardAdmin},
	types.EventEdit:            {guard: GuardAdmin},
	types.EventSubmit:          {from: []types.Status{types.StatusDraft}, to: types.StatusPending, guard: GuardAdmin},
	types.EventApprove:         {from: []types.Status{types.StatusPending}, to: types.StatusApproved, guard: GuardKaprodiMajor},
	types.EventReject:          {from: []types.Status{types.StatusPending}, to: types.StatusRejected, guard: GuardKaprodiMajor},
	types.EventRequestRevision: {from: []types.Status{types.StatusPending}, to: types.StatusNeedsRevision, guard: GuardKaprodiMajor},
	types.EventPublish:         {from: []types.Status{types.StatusApproved}, guard: GuardAdmin},
	types.EventComment:         {guard: GuardKaprodiMajor},
	types.EventDelete:          {guard: GuardAdmin},
}

func (t transition) allows(status types.Status) bool {
	if len(t.from) == 0 {
		return true
	}
	for _, s := range t.from {
		if s == status {
			return true
		}
	}
	return false
}

// guardEnv is the expression environment of one (actor, record) pair. Every
// env has the same keys so cached programs stay valid.
func guardEnv(actor types.Actor, rec types.ScheduleRecord) map[string]interface{} {
	return map[string]interface{}{
		"actor_role":   string(actor.Role),
		"actor_major":  actor.MajorCode(),
		"record_major": strings.ToUpper(rec.MajorCode),
		"is_admin":     actor.Role == types.RoleAdmin,
		"is_kaprodi":   actor.Role.IsKaprodi(),
	}
}

var verbs = map[types.Event]string{
	types.EventCreate:          "membuat",
	types.EventEdit:            "mengubah",
	types.EventSubmit:          "mengajukan",
	types.EventApprove:         "menyetujui",
	types.EventReject:          "menolak",
	types.EventRequestRevision: "meminta revisi",
	types.EventPublish:         "mempublikasikan",
	types.EventComment:         "mengomentari",
	types.EventDelete:          "menghapus",
}

func forbidden(event types.Event, actor types.Actor, rec types.ScheduleRecord) error {
	if actor.Role.IsKaprodi() {
		return fmt.Errorf("%w: Kaprodi %s tidak dapat %s jadwal jurusan %s",
			types.ErrForbidden, actor.MajorCode(), verbs[event], strings.ToUpper(rec.MajorCode))
	}
	return fmt.Errorf("%w: peran %q tidak dapat %s jadwal", types.ErrForbidden, actor.Role, verbs[event])
}

func invalidTransition(event types.Event, rec types.ScheduleRecord) error {
	return fmt.Errorf("%w: jadwal %d berstatus %s, tidak dapat %s",
		types.ErrInvalidTransition, rec.ID, rec.EffectiveStatus().Text(), verbs[event])
}
