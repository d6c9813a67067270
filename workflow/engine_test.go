package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/jadwal-engine/directory"
	"github.com/songzhibin97/jadwal-engine/events"
	"github.com/songzhibin97/jadwal-engine/notify"
	"github.com/songzhibin97/jadwal-engine/storage"
	"github.com/songzhibin97/jadwal-engine/types"
)

// MockGenerator is a simple ID generator for testing.
type MockGenerator struct {
	mu sync.Mutex
	id uint64
}

func (g *MockGenerator) NextID() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id++
	return g.id, nil
}

// FailingOutbox refuses every enqueue.
type FailingOutbox struct {
	calls int
}

func (o *FailingOutbox) Enqueue(ctx context.Context, reqs []types.NotificationRequest) error {
	o.calls++
	return errors.New("outbox unavailable")
}

// FailingStore fails updates after a number of successful ones.
type FailingStore struct {
	*storage.MemoryStorage
	mu          sync.Mutex
	updatesLeft int
}

func (s *FailingStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	if s.updatesLeft == 0 {
		s.mu.Unlock()
		return errors.New("connection reset")
	}
	s.updatesLeft--
	s.mu.Unlock()
	return s.MemoryStorage.Update(ctx, collection, id, fields)
}

var (
	admin      = types.Actor{ID: 1, Name: "Rina", Role: types.RoleAdmin}
	kaprodiTKJ = types.Actor{ID: 2, Name: "Pak Joko", Role: types.RoleKaprodiTKJ}
	kaprodiTKR = types.Actor{ID: 3, Name: "Bu Wati", Role: types.RoleKaprodiTKR}
	student    = types.Actor{ID: 4, Name: "Ayu", Role: types.RoleStudent}
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, storage.Store) {
	t.Helper()
	return newTestEngineWithStore(t, storage.NewMemoryStorage(), opts...)
}

func newTestEngineWithStore(t *testing.T, store storage.Store, opts ...Option) (*Engine, storage.Store) {
	t.Helper()
	dir, err := directory.New(store, &MockGenerator{id: 1000}, directory.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, dir.SeedMajors(context.Background()))

	logger, _ := test.NewNullLogger()
	clock := time.Date(2026, 7, 13, 8, 0, 0, 0, time.UTC)
	base := []Option{
		WithLogger(logger),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	}
	engine, err := NewEngine(&MockGenerator{}, store, dir, notify.NewRouter(dir, notify.WithRouterLogger(logger)), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Stop(context.Background()) })
	return engine, store
}

func jadwal(class, major string, day types.Day, slot string) types.ScheduleRecord {
	return types.ScheduleRecord{
		SubjectName:  "Pemrograman Dasar",
		TeacherID:    100,
		MajorCode:    major,
		ClassName:    class,
		Day:          day,
		SlotKey:      slot,
		Room:         "Lab 1",
		AcademicYear: "2026/2027",
		Semester:     types.Ganjil,
	}
}

func createOne(t *testing.T, e *Engine, rec types.ScheduleRecord) types.ScheduleRecord {
	t.Helper()
	res, err := e.Create(context.Background(), admin, rec)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	return res.Records[0]
}

func status(t *testing.T, e *Engine, id uint64) types.ScheduleRecord {
	t.Helper()
	rec, err := e.GetSchedule(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func TestCreate(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("DerivesTimesAndStartsInDraft", func(t *testing.T) {
		in := jadwal("X TKJ 1", "tkj", types.Jumat, "1")
		in.StartTime, in.EndTime = "06:00", "06:30"

		rec := createOne(t, e, in)
		assert.Equal(t, types.StatusDraft, rec.Status)
		assert.False(t, rec.IsPublished)
		assert.Equal(t, "TKJ", rec.MajorCode)
		assert.Equal(t, "07:30", rec.StartTime)
		assert.Equal(t, "08:10", rec.EndTime)
		assert.Equal(t, types.ChangeCreate, rec.LastChange)
		stored := status(t, e, rec.ID)
		assert.Equal(t, rec.ID, stored.ID)
		assert.True(t, rec.CreatedAt.Equal(stored.CreatedAt))
	})

	t.Run("ValidationBeforeAnyWrite", func(t *testing.T) {
		bad := jadwal("X TKJ 1", "TKJ", types.Senin, "1")
		bad.SubjectName = ""
		bad.TeacherID = 0

		_, err := e.Create(ctx, admin, jadwal("X TKJ 2", "TKJ", types.Senin, "2"), bad)
		require.ErrorIs(t, err, types.ErrValidation)
		var verr *types.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "Mata pelajaran wajib diisi", verr.Fields["subject_name"])
		assert.Equal(t, "Guru wajib diisi", verr.Fields["teacher_id"])
		assert.Contains(t, err.Error(), "jadwal ke-2")

		list, err := e.ListSchedules(ctx, ListFilter{ClassName: "X TKJ 2"})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("TeacherNameFallback", func(t *testing.T) {
		in := jadwal("X TKJ 1", "TKJ", types.Selasa, "2")
		in.TeacherID = 0
		in.TeacherName = "Guru Tamu"
		rec := createOne(t, e, in)
		assert.Equal(t, "Guru Tamu", rec.TeacherName)
	})

	t.Run("SlotNotOnFriday", func(t *testing.T) {
		_, err := e.Create(ctx, admin, jadwal("X TKJ 1", "TKJ", types.Jumat, "9"))
		require.ErrorIs(t, err, types.ErrValidation)
		assert.Contains(t, err.Error(), "Jam pelajaran 9 tidak tersedia pada hari Jumat")
	})

	t.Run("OnlyAdmin", func(t *testing.T) {
		_, err := e.Create(ctx, kaprodiTKJ, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
		assert.ErrorIs(t, err, types.ErrForbidden)
		_, err = e.Create(ctx, student, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
		assert.ErrorIs(t, err, types.ErrForbidden)
		_, err = e.Create(ctx, types.Actor{Name: "x", Role: "kaprodi tkj"}, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
		assert.ErrorIs(t, err, types.ErrForbidden)
	})
}

func TestCreateChecksMajor(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	t.Run("UnknownMajor", func(t *testing.T) {
		_, err := e.Create(ctx, admin, jadwal("Lab. IoT", "XYZ", types.Senin, "1"))
		require.ErrorIs(t, err, types.ErrNotFound)
		assert.Contains(t, err.Error(), "Jurusan XYZ tidak ditemukan")
	})

	t.Run("ClassOfOtherMajor", func(t *testing.T) {
		_, err := e.Create(ctx, admin,
			jadwal("X TKJ 2", "TKJ", types.Senin, "2"),
			jadwal("X TKJ 1", "TKR", types.Senin, "1"),
		)
		require.ErrorIs(t, err, types.ErrValidation)
		var verr *types.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "Kelas X TKJ 1 termasuk jurusan TKJ, bukan TKR", verr.Fields["major_code"])
		assert.Contains(t, err.Error(), "jadwal ke-2")
	})

	t.Run("InactiveMajor", func(t *testing.T) {
		dir, err := directory.New(store, &MockGenerator{id: 2000}, directory.DefaultConfig())
		require.NoError(t, err)
		require.NoError(t, dir.DeactivateMajor(ctx, "TKR"))

		_, err = e.Create(ctx, admin, jadwal("X TKR 1", "TKR", types.Senin, "1"))
		require.ErrorIs(t, err, types.ErrValidation)
		assert.Contains(t, err.Error(), "Jurusan TKR sudah tidak aktif")
	})

	t.Run("BlankText", func(t *testing.T) {
		in := jadwal("X TKJ 1", "TKJ", types.Senin, "1")
		in.SubjectName = "   "
		in.Room = "\t"
		_, err := e.Create(ctx, admin, in)
		var verr *types.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "Mata pelajaran wajib diisi", verr.Fields["subject_name"])
		assert.Equal(t, "Ruangan wajib diisi", verr.Fields["room"])
	})

	t.Run("TrimsStoredText", func(t *testing.T) {
		in := jadwal(" X TKJ 1 ", " tkj ", types.Senin, " 2 ")
		in.SubjectName = " Basis Data "
		rec := createOne(t, e, in)
		assert.Equal(t, "X TKJ 1", rec.ClassName)
		assert.Equal(t, "TKJ", rec.MajorCode)
		assert.Equal(t, "Basis Data", rec.SubjectName)
		assert.Equal(t, "08:15", rec.StartTime)
	})

	list, err := e.ListSchedules(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateChecksMajor(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))

	_, err := e.Update(ctx, admin, rec.ID, jadwal("X TKR 1", "TKJ", types.Senin, "1"))
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = e.Update(ctx, admin, rec.ID, jadwal("X TKJ 1", "XYZ", types.Senin, "1"))
	assert.ErrorIs(t, err, types.ErrNotFound)

	stored := status(t, e, rec.ID)
	assert.Equal(t, "X TKJ 1", stored.ClassName)
	assert.Equal(t, "TKJ", stored.MajorCode)
}

func TestSubmitThenApprove(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createOne(t, e, jadwal("XI TKJ 2", "TKJ", types.Senin, "3"))

	res, err := e.Submit(ctx, admin, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, status(t, e, rec.ID).Status)
	assert.Equal(t, types.StatusDraft, res.Action.FromStatus)
	assert.Equal(t, types.StatusPending, res.Action.ToStatus)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, types.TargetKaprodi, res.Notifications[0].TargetRole)
	assert.Equal(t, "TKJ", res.Notifications[0].TargetMajor)
	assert.Equal(t, types.CategoryCreate, res.Notifications[0].Category)

	res, err = e.Approve(ctx, kaprodiTKJ, rec.ID)
	require.NoError(t, err)
	got := status(t, e, rec.ID)
	assert.Equal(t, types.StatusApproved, got.Status)
	assert.True(t, got.IsPublished)
	assert.Equal(t, types.StatusPublished, got.EffectiveStatus())
	assert.Equal(t, types.StatusPublished, res.Action.ToStatus)

	roles := make([]types.TargetRole, 0, len(res.Notifications))
	for _, n := range res.Notifications {
		roles = append(roles, n.TargetRole)
	}
	assert.Equal(t, []types.TargetRole{types.TargetAdmin, types.TargetStudent, types.TargetTeacher}, roles)
	assert.Equal(t, types.CategoryApproved, res.Notifications[0].Category)
}

func TestSubmitOnlyFromDraft(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))

	_, err := e.Submit(ctx, admin, rec.ID)
	require.NoError(t, err)
	_, err = e.Submit(ctx, admin, rec.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = e.Approve(ctx, kaprodiTKJ, rec.ID)
	require.NoError(t, err)
	_, err = e.Approve(ctx, kaprodiTKJ, rec.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "Dipublikasikan")
}

func TestKaprodiOfOtherMajorIsForbidden(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
	_, err := e.Submit(ctx, admin, rec.ID)
	require.NoError(t, err)

	for _, call := range []func() (*Result, error){
		func() (*Result, error) { return e.Approve(ctx, kaprodiTKR, rec.ID) },
		func() (*Result, error) { return e.Reject(ctx, kaprodiTKR, rec.ID) },
		func() (*Result, error) { return e.RequestRevision(ctx, kaprodiTKR, "", rec.ID) },
		func() (*Result, error) { return e.Comment(ctx, kaprodiTKR, "cek", rec.ID) },
		func() (*Result, error) { return e.Approve(ctx, admin, rec.ID) },
	} {
		res, err := call()
		assert.Nil(t, res)
		assert.ErrorIs(t, err, types.ErrForbidden)
	}

	_, err = e.Approve(ctx, kaprodiTKR, rec.ID)
	assert.Contains(t, err.Error(), "Kaprodi TKR tidak dapat menyetujui jadwal jurusan TKJ")
	assert.Equal(t, types.StatusPending, status(t, e, rec.ID).Status)
}

func TestBatchIsCheckedBeforeWriting(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	res, err := e.Create(ctx, admin,
		jadwal("X TKJ 1", "TKJ", types.Senin, "1"),
		jadwal("X TKR 1", "TKR", types.Senin, "1"),
	)
	require.NoError(t, err)
	tkj, tkr := res.Records[0].ID, res.Records[1].ID
	_, err = e.Submit(ctx, admin, tkj, tkr)
	require.NoError(t, err)

	_, err = e.Approve(ctx, kaprodiTKJ, tkj, tkr)
	require.ErrorIs(t, err, types.ErrForbidden)
	assert.Equal(t, types.StatusPending, status(t, e, tkj).Status)
	assert.Equal(t, types.StatusPending, status(t, e, tkr).Status)

	_, err = e.Submit(ctx, admin, tkj, 9999)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRejectAndRevisionAreExclusive(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	rejected := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
	revised := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "2"))
	_, err := e.Submit(ctx, admin, rejected.ID, revised.ID)
	require.NoError(t, err)

	res, err := e.Reject(ctx, kaprodiTKJ, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, status(t, e, rejected.ID).Status)
	assert.Equal(t, types.CategoryRejected, res.Notifications[0].Category)

	res, err = e.RequestRevision(ctx, kaprodiTKJ, "Ganti ruang", revised.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNeedsRevision, status(t, e, revised.ID).Status)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, types.TargetAdmin, res.Notifications[0].TargetRole)
	assert.Contains(t, res.Notifications[0].Message, "Catatan: Ganti ruang")

	_, err = e.RequestRevision(ctx, kaprodiTKJ, "", rejected.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	_, err = e.Reject(ctx, kaprodiTKJ, revised.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	// a rejected schedule has to be edited back to draft before resubmitting
	_, err = e.Submit(ctx, admin, rejected.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	_, err = e.Update(ctx, admin, rejected.ID, jadwal("X TKJ 1", "TKJ", types.Senin, "4"))
	require.NoError(t, err)
	_, err = e.Submit(ctx, admin, rejected.ID)
	assert.NoError(t, err)
}

func TestEditRevertsToDraft(t *testing.T) {
	ctx := context.Background()

	t.Run("Approved", func(t *testing.T) {
		e, _ := newTestEngine(t, WithPublishOnApprove(false))
		rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
		_, err := e.Submit(ctx, admin, rec.ID)
		require.NoError(t, err)
		_, err = e.Approve(ctx, kaprodiTKJ, rec.ID)
		require.NoError(t, err)
		require.Equal(t, types.StatusApproved, status(t, e, rec.ID).EffectiveStatus())

		edit := jadwal("X TKJ 1", "TKJ", types.Senin, "5")
		res, err := e.Update(ctx, admin, rec.ID, edit)
		require.NoError(t, err)
		assert.Empty(t, res.Notifications)

		got := status(t, e, rec.ID)
		assert.Equal(t, types.StatusDraft, got.Status)
		assert.False(t, got.IsPublished)
		assert.Equal(t, "10:45", got.StartTime)
		assert.Equal(t, types.ChangeUpdate, got.LastChange)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

		res, err = e.Submit(ctx, admin, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, types.CategoryUpdate, res.Notifications[0].Category)
	})

	t.Run("PublishedNotifiesAudience", func(t *testing.T) {
		e, _ := newTestEngine(t)
		rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
		_, err := e.Submit(ctx, admin, rec.ID)
		require.NoError(t, err)
		_, err = e.Approve(ctx, kaprodiTKJ, rec.ID)
		require.NoError(t, err)

		res, err := e.Update(ctx, admin, rec.ID, jadwal("X TKJ 1", "TKJ", types.Senin, "2"))
		require.NoError(t, err)
		assert.Equal(t, types.StatusPublished, res.Action.FromStatus)
		require.Len(t, res.Notifications, 2)
		for _, n := range res.Notifications {
			assert.Equal(t, types.CategoryUpdate, n.Category)
		}
		assert.Equal(t, types.StatusDraft, status(t, e, rec.ID).EffectiveStatus())
	})

	t.Run("DraftStaysNew", func(t *testing.T) {
		e, _ := newTestEngine(t)
		rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
		_, err := e.Update(ctx, admin, rec.ID, jadwal("X TKJ 1", "TKJ", types.Senin, "2"))
		require.NoError(t, err)
		assert.Equal(t, types.ChangeCreate, status(t, e, rec.ID).LastChange)
	})

	t.Run("Missing", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.Update(ctx, admin, 42, jadwal("X TKJ 1", "TKJ", types.Senin, "2"))
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestDeleteKeepsStatus(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		steps func(e *Engine, id uint64) error
		want  types.Status
	}{
		{"Draft", func(e *Engine, id uint64) error { return nil }, types.StatusDraft},
		{"Pending", func(e *Engine, id uint64) error {
			_, err := e.Submit(ctx, admin, id)
			return err
		}, types.StatusPending},
		{"Published", func(e *Engine, id uint64) error {
			if _, err := e.Submit(ctx, admin, id); err != nil {
				return err
			}
			_, err := e.Approve(ctx, kaprodiTKJ, id)
			return err
		}, types.StatusApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
			require.NoError(t, tt.steps(e, rec.ID))

			deleted := make(chan events.Event, 1)
			e.SubscribeEvent(events.TypeScheduleDeleted, events.EventHandlerFunc(func(ctx context.Context, event events.Event) error {
				deleted <- event
				return nil
			}))

			res, err := e.Delete(ctx, admin, rec.ID)
			require.NoError(t, err)
			require.Len(t, res.Records, 1)
			assert.Equal(t, tt.want, res.Records[0].Status)
			assert.Empty(t, res.Action.ToStatus)

			require.NotEmpty(t, res.Notifications)
			for _, n := range res.Notifications {
				assert.Equal(t, types.CategoryDelete, n.Category)
			}

			select {
			case event := <-deleted:
				assert.Equal(t, rec.ID, event.ScheduleID)
				assert.Equal(t, tt.want, event.Data["status"])
			case <-time.After(time.Second):
				t.Fatal("schedule_deleted event not published")
			}

			_, err = e.GetSchedule(ctx, rec.ID)
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}

	t.Run("OnlyAdmin", func(t *testing.T) {
		e, _ := newTestEngine(t)
		rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
		_, err := e.Delete(ctx, kaprodiTKJ, rec.ID)
		assert.ErrorIs(t, err, types.ErrForbidden)
	})
}

func TestPublishedOnlyWhenApproved(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Create(ctx, admin,
		jadwal("X TKJ 1", "TKJ", types.Senin, "1"),
		jadwal("X TKJ 1", "TKJ", types.Senin, "2"),
		jadwal("X TKJ 1", "TKJ", types.Senin, "3"),
		jadwal("X TKJ 1", "TKJ", types.Senin, "4"),
	)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(res.Records))
	for _, r := range res.Records {
		ids = append(ids, r.ID)
	}

	check := func() {
		t.Helper()
		list, err := e.ListSchedules(ctx, ListFilter{})
		require.NoError(t, err)
		for _, rec := range list {
			assert.Equal(t, rec.Status == types.StatusApproved, rec.IsPublished, "record %d in %s", rec.ID, rec.Status)
		}
	}

	steps := []func() error{
		func() error {
			_, err := e.Submit(ctx, admin, ids...)
			return err
		},
		func() error {
			_, err := e.Approve(ctx, kaprodiTKJ, ids[0], ids[1])
			return err
		},
		func() error {
			_, err := e.Reject(ctx, kaprodiTKJ, ids[2])
			return err
		},
		func() error {
			_, err := e.RequestRevision(ctx, kaprodiTKJ, "", ids[3])
			return err
		},
		func() error {
			_, err := e.Update(ctx, admin, ids[0], jadwal("X TKJ 1", "TKJ", types.Rabu, "1"))
			return err
		},
		func() error {
			_, err := e.Comment(ctx, kaprodiTKJ, "ok", ids[1])
			return err
		},
		func() error {
			_, err := e.Delete(ctx, admin, ids[2])
			return err
		},
	}
	check()
	for _, step := range steps {
		require.NoError(t, step())
		check()
	}
}

func TestPublishAfterApproval(t *testing.T) {
	e, _ := newTestEngine(t, WithPublishOnApprove(false))
	ctx := context.Background()
	rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))

	_, err := e.Publish(ctx, admin, rec.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = e.Submit(ctx, admin, rec.ID)
	require.NoError(t, err)
	res, err := e.Approve(ctx, kaprodiTKJ, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, res.Action.ToStatus)
	require.Len(t, res.Notifications, 1)
	assert.False(t, status(t, e, rec.ID).IsPublished)

	res, err = e.Publish(ctx, admin, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, status(t, e, rec.ID).EffectiveStatus())
	require.Len(t, res.Notifications, 2)
	assert.Equal(t, types.TargetStudent, res.Notifications[0].TargetRole)
	assert.Equal(t, types.CategoryCreate, res.Notifications[0].Category)

	_, err = e.Publish(ctx, admin, rec.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	list, err := e.ListSchedules(ctx, ListFilter{Status: types.StatusPublished})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = e.ListSchedules(ctx, ListFilter{Status: types.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBatchSubmitOneNotificationPerClass(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Create(ctx, admin,
		jadwal("X TKJ 1", "TKJ", types.Senin, "1"),
		jadwal("X TKJ 1", "TKJ", types.Senin, "2"),
		jadwal("X TKR 1", "TKR", types.Senin, "1"),
	)
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)

	ids := []uint64{res.Records[0].ID, res.Records[1].ID, res.Records[2].ID}
	res, err = e.Submit(ctx, admin, ids...)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 2)
	assert.Equal(t, "X TKJ 1", res.Notifications[0].ClassName)
	assert.Equal(t, 2, res.Notifications[0].Count)
	assert.Equal(t, "TKJ", res.Notifications[0].TargetMajor)
	assert.Equal(t, "X TKR 1", res.Notifications[1].ClassName)
	assert.Equal(t, "TKR", res.Notifications[1].TargetMajor)
	assert.Equal(t, ids, res.Action.ScheduleIDs)
}

func TestUnknownClassSkipsKaprodi(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createOne(t, e, jadwal("Lab. IoT", "TKJ", types.Senin, "1"))

	res, err := e.Submit(ctx, admin, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Lab. IoT")
	assert.Equal(t, types.StatusPending, status(t, e, rec.ID).Status)
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()

	t.Run("OutboxError", func(t *testing.T) {
		outbox := &FailingOutbox{}
		e, _ := newTestEngine(t, WithOutbox(outbox))
		rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))

		res, err := e.Submit(ctx, admin, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, outbox.calls)
		assert.Len(t, res.Notifications, 1)
		assert.Equal(t, types.StatusPending, status(t, e, rec.ID).Status)
	})

	t.Run("SenderError", func(t *testing.T) {
		bus := events.NewEventBus()
		defer bus.Stop()
		logger, hook := test.NewNullLogger()
		dispatcher := notify.NewDispatcher(failingSender{}, nil, logger)
		e, _ := newTestEngine(t, WithEventBus(bus), WithOutbox(notify.NewBusOutbox(bus, dispatcher)))
		rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))

		_, err := e.Submit(ctx, admin, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusPending, status(t, e, rec.ID).Status)
		assert.Eventually(t, func() bool { return len(hook.AllEntries()) == 1 }, time.Second, 10*time.Millisecond)
	})
}

type failingSender struct{}

func (failingSender) CreateNotification(ctx context.Context, targetRole types.Role, subject, message string, sender types.SenderInfo, category types.Category) error {
	return errors.New("notification service down")
}

func (failingSender) SendPushNotification(ctx context.Context, token, title, body string) error {
	return errors.New("notification service down")
}

func TestPartialBatchFailure(t *testing.T) {
	ctx := context.Background()
	store := &FailingStore{MemoryStorage: storage.NewMemoryStorage(), updatesLeft: 1}
	outbox := notify.NewMemoryOutbox()
	e, _ := newTestEngineWithStore(t, store, WithOutbox(outbox))

	res, err := e.Create(ctx, admin,
		jadwal("X TKJ 1", "TKJ", types.Senin, "1"),
		jadwal("X TKJ 2", "TKJ", types.Senin, "1"),
	)
	require.NoError(t, err)

	res, err = e.Submit(ctx, admin, res.Records[0].ID, res.Records[1].ID)
	require.Error(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Records, 1)
	assert.Equal(t, types.StatusPending, res.Records[0].Status)
	require.Len(t, outbox.Pending(), 1)
	assert.Equal(t, "X TKJ 1", outbox.Pending()[0].ClassName)
}

func TestComment(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))

	_, err := e.Comment(ctx, kaprodiTKJ, "  ", rec.ID)
	assert.ErrorIs(t, err, types.ErrValidation)

	res, err := e.Comment(ctx, kaprodiTKJ, "Guru bentrok dengan X TKJ 2", rec.ID)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, types.CategoryComment, res.Notifications[0].Category)
	assert.Equal(t, types.TargetAdmin, res.Notifications[0].TargetRole)
	assert.Equal(t, types.StatusDraft, status(t, e, rec.ID).Status)
}

func TestStatusChangedEvents(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []types.Status
	e.SubscribeEvent(events.TypeStatusChanged, events.EventHandlerFunc(func(ctx context.Context, event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event.Data["to"].(types.Status))
		return nil
	}))

	rec := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
	_, err := e.Submit(ctx, admin, rec.ID)
	require.NoError(t, err)
	_, err = e.Approve(ctx, kaprodiTKJ, rec.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []types.Status{types.StatusDraft, types.StatusPending, types.StatusPublished}, got)
}

func TestListSchedules(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, admin,
		jadwal("X TKJ 1", "TKJ", types.Rabu, "2"),
		jadwal("X TKR 1", "TKR", types.Senin, "3"),
		jadwal("X TKJ 1", "TKJ", types.Senin, "1"),
		jadwal("X TKJ 1", "TKJ", types.Rabu, "1"),
	)
	require.NoError(t, err)

	list, err := e.ListSchedules(ctx, ListFilter{MajorCode: "tkj"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, types.Senin, list[0].Day)
	assert.Equal(t, "07:30", list[1].StartTime)
	assert.Equal(t, types.Rabu, list[1].Day)
	assert.Equal(t, "08:15", list[2].StartTime)

	list, err = e.ListSchedules(ctx, ListFilter{Day: types.Senin, Status: types.StatusDraft})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = e.ListSchedules(ctx, ListFilter{ClassName: "X TKR 1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	dir, err := directory.New(storage.NewMemoryStorage(), &MockGenerator{}, directory.DefaultConfig())
	require.NoError(t, err)

	_, err = NewEngine(nil, nil, dir, notify.NewRouter(dir))
	assert.Error(t, err)
	_, err = NewEngine(&MockGenerator{}, nil, nil, notify.NewRouter(dir))
	assert.Error(t, err)
	_, err = NewEngine(&MockGenerator{}, nil, dir, nil)
	assert.Error(t, err)
}

func TestDeleteMixedStatusesHasNoFromStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	draft := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "1"))
	pending := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "2"))
	_, err := e.Submit(ctx, admin, pending.ID)
	require.NoError(t, err)

	res, err := e.Delete(ctx, admin, draft.ID, pending.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Action.FromStatus)

	other := createOne(t, e, jadwal("X TKJ 1", "TKJ", types.Senin, "3"))
	res, err = e.Delete(ctx, admin, other.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, res.Action.FromStatus)
}
