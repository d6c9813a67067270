// Package notify turns workflow transitions into notification requests and
// delivers them on a best-effort basis.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/songzhibin97/jadwal-engine/types"
)

// MajorResolver maps a class name to its major code.
type MajorResolver interface {
	ResolveMajorFromClassName(className string) (string, error)
}

// Plan is the routing outcome of one action.
type Plan struct {
	Requests []types.NotificationRequest
	Warnings []string
}

// Router decides who hears about a transition and what they are told.
type Router struct {
	resolver MajorResolver
	logger   logrus.FieldLogger
	newID    func() string
	now      func() time.Time
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used for routing warnings.
func WithRouterLogger(logger logrus.FieldLogger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// WithRouterClock overrides time.Now.
func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// NewRouter creates a Router.
func NewRouter(resolver MajorResolver, opts ...RouterOption) *Router {
	r := &Router{
		resolver: resolver,
		logger:   logrus.StandardLogger(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// classGroup is the records of one class, in first-appearance order.
type classGroup struct {
	className string
	records   []types.ScheduleRecord
}

func groupByClass(records []types.ScheduleRecord) []classGroup {
	var groups []classGroup
	index := make(map[string]int)
	for _, rec := range records {
		i, ok := index[rec.ClassName]
		if !ok {
			i = len(groups)
			index[rec.ClassName] = i
			groups = append(groups, classGroup{className: rec.ClassName})
		}
		groups[i].records = append(groups[i].records, rec)
	}
	return groups
}

// Route produces one request per class and audience for the action. A class
// whose major cannot be resolved gets no kaprodi request and a warning
// instead; it is never routed to some other major.
func (r *Router) Route(action types.ApprovalAction, records []types.ScheduleRecord) Plan {
	var plan Plan
	sender := types.SenderInfo{
		Name:      action.Actor.Name,
		Role:      action.Actor.Role,
		MajorCode: action.Actor.MajorCode(),
	}

	for _, g := range groupByClass(records) {
		switch action.Event {
		case types.EventSubmit:
			r.toKaprodi(&plan, action, sender, g, submitCategory(action, g.records))

		case types.EventDelete:
			r.toKaprodi(&plan, action, sender, g, types.CategoryDelete)
			r.toAudience(&plan, action, sender, g, types.CategoryDelete)

		case types.EventApprove:
			r.toAdmin(&plan, action, sender, g, types.CategoryApproved)
			if action.ToStatus == types.StatusPublished {
				r.toAudience(&plan, action, sender, g, changeCategory(g.records))
			}

		case types.EventPublish:
			r.toAudience(&plan, action, sender, g, changeCategory(g.records))

		case types.EventReject:
			r.toAdmin(&plan, action, sender, g, types.CategoryRejected)

		case types.EventRequestRevision:
			r.toAdmin(&plan, action, sender, g, types.CategoryNeedsRevision)

		case types.EventComment:
			r.toAdmin(&plan, action, sender, g, types.CategoryComment)

		case types.EventEdit:
			// Only edits of published schedules concern students and teachers.
			if action.FromStatus == types.StatusPublished {
				r.toAudience(&plan, action, sender, g, types.CategoryUpdate)
			}
		}
	}
	return plan
}

func submitCategory(action types.ApprovalAction, records []types.ScheduleRecord) types.Category {
	switch action.Change {
	case types.ChangeCreate:
		return types.CategoryCreate
	case types.ChangeUpdate:
		return types.CategoryUpdate
	}
	return changeCategory(records)
}

// changeCategory is create when every record is new, update otherwise.
func changeCategory(records []types.ScheduleRecord) types.Category {
	for _, rec := range records {
		if rec.LastChange != types.ChangeCreate {
			return types.CategoryUpdate
		}
	}
	return types.CategoryCreate
}

func (r *Router) request(action types.ApprovalAction, sender types.SenderInfo, g classGroup, cat types.Category) types.NotificationRequest {
	subject, message := compose(cat, action, g)
	return types.NotificationRequest{
		ID:        r.newID(),
		ActionID:  action.ID,
		Category:  cat,
		Subject:   subject,
		Message:   message,
		ClassName: g.className,
		Count:     len(g.records),
		Sender:    sender,
		CreatedAt: r.now(),
	}
}

func (r *Router) toKaprodi(plan *Plan, action types.ApprovalAction, sender types.SenderInfo, g classGroup, cat types.Category) {
	major, err := r.resolver.ResolveMajorFromClassName(g.className)
	if err != nil {
		warning := fmt.Sprintf("notifikasi kaprodi untuk kelas %q dilewati: jurusan tidak dikenali", g.className)
		plan.Warnings = append(plan.Warnings, warning)
		r.logger.WithFields(logrus.Fields{
			"class":    g.className,
			"event":    action.Event,
			"category": cat,
		}).Warn("kaprodi notification skipped: major not resolved")
		return
	}
	req := r.request(action, sender, g, cat)
	req.TargetRole = types.TargetKaprodi
	req.TargetMajor = major
	plan.Requests = append(plan.Requests, req)
}

func (r *Router) toAdmin(plan *Plan, action types.ApprovalAction, sender types.SenderInfo, g classGroup, cat types.Category) {
	req := r.request(action, sender, g, cat)
	req.TargetRole = types.TargetAdmin
	plan.Requests = append(plan.Requests, req)
}

// toAudience addresses the students of each record major and every teacher
// referenced in the class group.
func (r *Router) toAudience(plan *Plan, action types.ApprovalAction, sender types.SenderInfo, g classGroup, cat types.Category) {
	seenMajor := make(map[string]bool)
	seenTeacher := make(map[uint64]bool)
	for _, rec := range g.records {
		major := strings.ToUpper(rec.MajorCode)
		if major != "" && !seenMajor[major] {
			seenMajor[major] = true
			req := r.request(action, sender, g, cat)
			req.TargetRole = types.TargetStudent
			req.TargetMajor = major
			plan.Requests = append(plan.Requests, req)
		}
	}
	for _, rec := range g.records {
		if rec.TeacherID != 0 && !seenTeacher[rec.TeacherID] {
			seenTeacher[rec.TeacherID] = true
			req := r.request(action, sender, g, cat)
			req.TargetRole = types.TargetTeacher
			req.TargetUserID = rec.TeacherID
			plan.Requests = append(plan.Requests, req)
		}
	}
}
