// Package workflow drives schedule records through the approval state machine
// and turns every committed transition into notification intents.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/jadwal-engine/events"
	"github.com/songzhibin97/jadwal-engine/notify"
	"github.com/songzhibin97/jadwal-engine/rules"
	"github.com/songzhibin97/jadwal-engine/schedule"
	"github.com/songzhibin97/jadwal-engine/storage"
	"github.com/songzhibin97/jadwal-engine/types"
)

// Result is the outcome of one workflow call. Notifications are the intents
// handed to the outbox; they are returned even when no outbox is configured.
type Result struct {
	Action        types.ApprovalAction
	Records       []types.ScheduleRecord
	Notifications []types.NotificationRequest
	Warnings      []string
}

// Majors is the major reference records are checked against.
// *directory.Directory satisfies it.
type Majors interface {
	GetMajor(ctx context.Context, code string) (types.Major, error)
	ResolveMajorFromClassName(className string) (string, error)
}

// Engine is the schedule approval workflow.
type Engine struct {
	store            storage.Store
	majors           Majors
	generate         generator.Generator
	router           *notify.Router
	sched            *schedule.Rules
	evaluator        rules.Evaluator
	outbox           notify.Outbox
	eventBus         *events.EventBus
	ownsBus          bool
	logger           logrus.FieldLogger
	publishOnApprove bool
	now              func() time.Time
	newID            func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutbox sets where notification intents go after a transition commits.
func WithOutbox(outbox notify.Outbox) Option {
	return func(e *Engine) { e.outbox = outbox }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithPublishOnApprove controls whether approval publishes right away.
// Enabled by default.
func WithPublishOnApprove(enabled bool) Option {
	return func(e *Engine) { e.publishOnApprove = enabled }
}

// WithEventBus shares an existing bus instead of creating one. The engine
// does not stop a shared bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) {
		e.eventBus = bus
		e.ownsBus = false
	}
}

// WithEvaluator overrides the guard evaluator.
func WithEvaluator(evaluator rules.Evaluator) Option {
	return func(e *Engine) { e.evaluator = evaluator }
}

// WithScheduleRules overrides the time slot table and palette.
func WithScheduleRules(r *schedule.Rules) Option {
	return func(e *Engine) { e.sched = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(generate generator.Generator, store storage.Store, majors Majors, router *notify.Router, opts ...Option) (*Engine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}
	if majors == nil {
		return nil, errors.New("major lookup is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}
	if store == nil {
		store = storage.NewMemoryStorage()
	}

	e := &Engine{
		store:            store,
		majors:           majors,
		generate:         generate,
		router:           router,
		logger:           logrus.StandardLogger(),
		publishOnApprove: true,
		now:              time.Now,
		newID:            uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sched == nil {
		e.sched = schedule.NewRules(schedule.DefaultTable(), schedule.DefaultPalette())
	}
	if e.evaluator == nil {
		e.evaluator = rules.NewExprEvaluator()
	}
	if e.eventBus == nil {
		e.eventBus = events.NewEventBus(events.WithLogger(e.logger))
		e.ownsBus = true
	}
	return e, nil
}

// SubscribeEvent subscribes a handler to status_changed or schedule_deleted events.
func (e *Engine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// EventBus returns the bus the engine publishes on.
func (e *Engine) EventBus() *events.EventBus {
	return e.eventBus
}

// Rules returns the schedule rules in use.
func (e *Engine) Rules() *schedule.Rules {
	return e.sched
}

// GenerateID generates a unique ID using the configured generator.
func (e *Engine) GenerateID() (uint64, error) {
	return e.generate.NextID()
}

// authorize runs the event's guard against one record.
func (e *Engine) authorize(event types.Event, actor types.Actor, rec types.ScheduleRecord) error {
	t, ok := transitions[event]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrInvalidTransition, event)
	}
	if !actor.Role.Valid() {
		return forbidden(event, actor, rec)
	}
	allowed, err := e.evaluator.Evaluate(t.guard, guardEnv(actor, rec))
	if err != nil {
		return fmt.Errorf("failed to evaluate guard '%s': %w", t.guard, err)
	}
	if !allowed {
		return forbidden(event, actor, rec)
	}
	return nil
}

// prepare normalizes and validates a record and derives its times.
func (e *Engine) prepare(ctx context.Context, rec *types.ScheduleRecord) error {
	schedule.Normalize(rec)
	if err := e.sched.Validate(*rec).Err(); err != nil {
		return err
	}
	if err := e.checkMajor(ctx, *rec); err != nil {
		return err
	}
	return e.sched.ApplyTimeRange(rec)
}

// checkMajor requires an active major that agrees with the class name. A
// class name without a known major is accepted; the router skips the kaprodi
// for it with a warning.
func (e *Engine) checkMajor(ctx context.Context, rec types.ScheduleRecord) error {
	major, err := e.majors.GetMajor(ctx, rec.MajorCode)
	if err != nil {
		return err
	}
	if !major.Active {
		return types.NewValidationError(map[string]string{
			"major_code": fmt.Sprintf("Jurusan %s sudah tidak aktif", rec.MajorCode),
		})
	}

	classMajor, err := e.majors.ResolveMajorFromClassName(rec.ClassName)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if classMajor != rec.MajorCode {
		return types.NewValidationError(map[string]string{
			"major_code": fmt.Sprintf("Kelas %s termasuk jurusan %s, bukan %s", rec.ClassName, classMajor, rec.MajorCode),
		})
	}
	return nil
}

func (e *Engine) newAction(event types.Event, actor types.Actor, records []types.ScheduleRecord) types.ApprovalAction {
	ids := make([]uint64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return types.ApprovalAction{
		ID:          e.newID(),
		Event:       event,
		ScheduleIDs: ids,
		Actor:       actor,
		Timestamp:   e.now(),
	}
}

// Create stores new records in Draft. All records are validated before the
// first write; on a persistence error the records written so far are returned
// along with the error.
func (e *Engine) Create(ctx context.Context, actor types.Actor, records ...types.ScheduleRecord) (*Result, error) {
	if len(records) == 0 {
		return nil, errors.New("no schedule records given")
	}

	prepared := make([]types.ScheduleRecord, len(records))
	for i, rec := range records {
		if err := e.authorize(types.EventCreate, actor, rec); err != nil {
			return nil, err
		}
		if err := e.prepare(ctx, &rec); err != nil {
			return nil, batchErr(len(records), i, err)
		}
		prepared[i] = rec
	}

	now := e.now()
	committed := make([]types.ScheduleRecord, 0, len(prepared))
	var writeErr error
	for _, rec := range prepared {
		id, err := e.GenerateID()
		if err != nil {
			writeErr = fmt.Errorf("failed to generate ID: %w", err)
			break
		}
		rec.ID = id
		rec.Status = types.StatusDraft
		rec.IsPublished = false
		rec.LastChange = types.ChangeCreate
		rec.CreatedAt = now
		rec.UpdatedAt = now
		if err := e.store.Create(ctx, storage.CollectionSchedules, storage.ID(id), rec); err != nil {
			writeErr = fmt.Errorf("failed to save jadwal: %w", err)
			break
		}
		committed = append(committed, rec)
	}

	action := e.newAction(types.EventCreate, actor, committed)
	action.Change = types.ChangeCreate
	action.ToStatus = types.StatusDraft
	res := e.commit(ctx, action, committed)
	return res, writeErr
}

// Update replaces the editable fields of a record. Any edit sends the record
// back to Draft, so an approved or published schedule has to be approved again.
func (e *Engine) Update(ctx context.Context, actor types.Actor, id uint64, rec types.ScheduleRecord) (*Result, error) {
	existing, err := e.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(types.EventEdit, actor, existing); err != nil {
		return nil, err
	}
	if err := e.prepare(ctx, &rec); err != nil {
		return nil, err
	}

	prior := existing.EffectiveStatus()
	rec.ID = id
	rec.Status = types.StatusDraft
	rec.IsPublished = false
	rec.LastChange = types.ChangeUpdate
	if existing.LastChange == types.ChangeCreate && existing.Status != types.StatusApproved {
		// never approved, so it is still a new schedule to the kaprodi
		rec.LastChange = types.ChangeCreate
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = e.now()

	if err := e.store.Put(ctx, storage.CollectionSchedules, storage.ID(id), rec); err != nil {
		return nil, fmt.Errorf("failed to save jadwal %d: %w", id, err)
	}

	// The audience hears about the edit under the record as it was published.
	notified := rec
	if prior == types.StatusPublished {
		notified.ClassName = existing.ClassName
		notified.MajorCode = existing.MajorCode
	}

	action := e.newAction(types.EventEdit, actor, []types.ScheduleRecord{rec})
	action.Change = types.ChangeUpdate
	action.FromStatus = prior
	action.ToStatus = types.StatusDraft
	res := e.commitRouted(ctx, action, []types.ScheduleRecord{rec}, []types.ScheduleRecord{notified})
	return res, nil
}

// Submit sends Draft records to the kaprodi of their major.
func (e *Engine) Submit(ctx context.Context, actor types.Actor, ids ...uint64) (*Result, error) {
	return e.transition(ctx, types.EventSubmit, actor, ids, "")
}

// Approve approves Pending records, publishing them when publish-on-approve is enabled.
func (e *Engine) Approve(ctx context.Context, actor types.Actor, ids ...uint64) (*Result, error) {
	return e.transition(ctx, types.EventApprove, actor, ids, "")
}

// Reject rejects Pending records.
func (e *Engine) Reject(ctx context.Context, actor types.Actor, ids ...uint64) (*Result, error) {
	return e.transition(ctx, types.EventReject, actor, ids, "")
}

// RequestRevision returns Pending records to the admin with an optional comment.
func (e *Engine) RequestRevision(ctx context.Context, actor types.Actor, comment string, ids ...uint64) (*Result, error) {
	return e.transition(ctx, types.EventRequestRevision, actor, ids, comment)
}

// Publish publishes Approved records; only needed when publish-on-approve is off.
func (e *Engine) Publish(ctx context.Context, actor types.Actor, ids ...uint64) (*Result, error) {
	return e.transition(ctx, types.EventPublish, actor, ids, "")
}

// Comment sends a kaprodi comment to the admins without changing any status.
func (e *Engine) Comment(ctx context.Context, actor types.Actor, comment string, ids ...uint64) (*Result, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, types.NewValidationError(map[string]string{"comment": "Komentar wajib diisi"})
	}
	return e.transition(ctx, types.EventComment, actor, ids, comment)
}

// Delete removes records. Deletion is not a status: the records keep their
// status up to removal and the audience gets a delete notification.
func (e *Engine) Delete(ctx context.Context, actor types.Actor, ids ...uint64) (*Result, error) {
	return e.transition(ctx, types.EventDelete, actor, ids, "")
}

// transition applies event to every record in ids. Guards and source states
// are checked for the whole batch before the first write.
func (e *Engine) transition(ctx context.Context, event types.Event, actor types.Actor, ids []uint64, comment string) (*Result, error) {
	if len(ids) == 0 {
		return nil, errors.New("no schedule ids given")
	}
	t := transitions[event]

	records, err := e.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := e.authorize(event, actor, rec); err != nil {
			return nil, err
		}
		if !t.allows(rec.Status) || (event == types.EventPublish && rec.IsPublished) {
			return nil, invalidTransition(event, rec)
		}
	}

	action := e.newAction(event, actor, records)
	action.FromStatus = commonStatus(records)
	action.Comment = comment

	to, publish := t.to, false
	switch event {
	case types.EventApprove:
		publish = e.publishOnApprove
	case types.EventPublish:
		to, publish = types.StatusApproved, true
	}
	if to != "" {
		action.ToStatus = to
		if publish {
			action.ToStatus = types.StatusPublished
		}
	}

	now := e.now()
	committed := make([]types.ScheduleRecord, 0, len(records))
	var writeErr error
	for _, rec := range records {
		switch {
		case event == types.EventDelete:
			if err := e.store.Delete(ctx, storage.CollectionSchedules, storage.ID(rec.ID)); err != nil {
				writeErr = fmt.Errorf("failed to delete jadwal %d: %w", rec.ID, err)
			}
		case to != "":
			fields := map[string]interface{}{
				"status":       to,
				"is_published": publish,
				"updated_at":   now,
			}
			if err := e.store.Update(ctx, storage.CollectionSchedules, storage.ID(rec.ID), fields); err != nil {
				writeErr = fmt.Errorf("failed to update jadwal %d: %w", rec.ID, err)
			} else {
				rec.Status = to
				rec.IsPublished = publish
				rec.UpdatedAt = now
			}
		}
		if writeErr != nil {
			break
		}
		committed = append(committed, rec)
	}

	action.ScheduleIDs = action.ScheduleIDs[:len(committed)]
	res := e.commit(ctx, action, committed)
	return res, writeErr
}

// commonStatus is the effective status shared by all records, empty when
// they differ.
func commonStatus(records []types.ScheduleRecord) types.Status {
	from := records[0].EffectiveStatus()
	for _, rec := range records[1:] {
		if rec.EffectiveStatus() != from {
			return ""
		}
	}
	return from
}

// load fetches records in the order of ids.
func (e *Engine) load(ctx context.Context, ids []uint64) ([]types.ScheduleRecord, error) {
	records := make([]types.ScheduleRecord, 0, len(ids))
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		rec, err := e.GetSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *Engine) commit(ctx context.Context, action types.ApprovalAction, records []types.ScheduleRecord) *Result {
	return e.commitRouted(ctx, action, records, records)
}

// commitRouted routes the committed records, hands the intents to the outbox
// and publishes workflow events. Nothing here can fail the call: the
// transition has already been written.
func (e *Engine) commitRouted(ctx context.Context, action types.ApprovalAction, records, routed []types.ScheduleRecord) *Result {
	res := &Result{Action: action, Records: records}
	if len(records) == 0 {
		return res
	}

	plan := e.router.Route(action, routed)
	res.Notifications = plan.Requests
	res.Warnings = plan.Warnings

	if e.outbox != nil && len(plan.Requests) > 0 {
		if err := e.outbox.Enqueue(ctx, plan.Requests); err != nil {
			e.logger.WithFields(logrus.Fields{
				"action_id": action.ID,
				"event":     action.Event,
				"count":     len(plan.Requests),
			}).WithError(err).Warn("failed to enqueue notifications")
		}
	}

	for _, rec := range records {
		if action.Event == types.EventDelete {
			e.publishEvent(ctx, events.TypeScheduleDeleted, rec.ID, map[string]interface{}{
				"action_id": action.ID,
				"status":    rec.Status,
				"class":     rec.ClassName,
			})
			continue
		}
		e.publishEvent(ctx, events.TypeStatusChanged, rec.ID, map[string]interface{}{
			"action_id": action.ID,
			"event":     action.Event,
			"from":      action.FromStatus,
			"to":        rec.EffectiveStatus(),
		})
	}
	return res
}

// publishEvent publishes an event if anyone listens; failures are only logged.
func (e *Engine) publishEvent(ctx context.Context, eventType string, scheduleID uint64, data map[string]interface{}) {
	if !e.eventBus.HasSubscribers(eventType) {
		return
	}
	err := e.eventBus.Publish(ctx, events.Event{
		Type:       eventType,
		ScheduleID: scheduleID,
		Data:       data,
	})
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"event":       eventType,
			"schedule_id": scheduleID,
		}).WithError(err).Warn("failed to publish workflow event")
	}
}

// GetSchedule retrieves a schedule record by ID.
func (e *Engine) GetSchedule(ctx context.Context, id uint64) (types.ScheduleRecord, error) {
	rec, err := storage.GetAs[types.ScheduleRecord](ctx, e.store, storage.CollectionSchedules, storage.ID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return rec, fmt.Errorf("%w: jadwal %d", types.ErrNotFound, id)
	}
	return rec, err
}

// ListFilter narrows ListSchedules; zero fields match everything.
type ListFilter struct {
	ClassName string
	MajorCode string
	Day       types.Day
	Status    types.Status // StatusPublished matches approved and published records
}

// ListSchedules returns matching records ordered by day, start time and class.
func (e *Engine) ListSchedules(ctx context.Context, f ListFilter) ([]types.ScheduleRecord, error) {
	var filters []storage.Filter
	if f.ClassName != "" {
		filters = append(filters, storage.Eq("class_name", f.ClassName))
	}
	if f.MajorCode != "" {
		filters = append(filters, storage.Eq("major_code", strings.ToUpper(f.MajorCode)))
	}
	if f.Day != "" {
		filters = append(filters, storage.Eq("day", f.Day))
	}
	switch f.Status {
	case "":
	case types.StatusPublished:
		filters = append(filters, storage.Eq("status", types.StatusApproved), storage.Eq("is_published", true))
	case types.StatusApproved:
		filters = append(filters, storage.Eq("status", types.StatusApproved), storage.Eq("is_published", false))
	default:
		filters = append(filters, storage.Eq("status", f.Status))
	}

	records, err := storage.FindAs[types.ScheduleRecord](ctx, e.store, storage.CollectionSchedules, filters...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jadwal: %w", err)
	}
	SortRecords(records)
	return records, nil
}

// SortRecords orders records by day, start time and class name.
func SortRecords(records []types.ScheduleRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Day.Index() != b.Day.Index() {
			return a.Day.Index() < b.Day.Index()
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ClassName < b.ClassName
	})
}

func batchErr(total, i int, err error) error {
	if total == 1 {
		return err
	}
	return fmt.Errorf("jadwal ke-%d: %w", i+1, err)
}

// Stop stops the event bus if the engine created it.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if e.ownsBus {
			e.eventBus.Stop()
		}
		return nil
	}
}
