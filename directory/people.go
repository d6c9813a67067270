package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/songzhibin97/jadwal-engine/storage"
	"github.com/songzhibin97/jadwal-engine/types"
)

// CreateTeacher stores a teacher.
func (d *Directory) CreateTeacher(ctx context.Context, t types.Teacher) (types.Teacher, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return types.Teacher{}, types.NewValidationError(map[string]string{"name": "Nama guru wajib diisi"})
	}
	id, err := d.gen.NextID()
	if err != nil {
		return types.Teacher{}, fmt.Errorf("failed to generate ID: %w", err)
	}
	t.ID = id
	t.HomeroomClass = ""
	if err := d.store.Create(ctx, storage.CollectionTeachers, storage.ID(id), t); err != nil {
		return types.Teacher{}, err
	}
	return t, nil
}

// GetTeacher loads a teacher by id.
func (d *Directory) GetTeacher(ctx context.Context, id uint64) (types.Teacher, error) {
	t, err := storage.GetAs[types.Teacher](ctx, d.store, storage.CollectionTeachers, storage.ID(id))
	if err != nil {
		return types.Teacher{}, notFound(err, "Guru %d tidak ditemukan", id)
	}
	return t, nil
}

// FindTeacherByName returns the first teacher with exactly this name.
func (d *Directory) FindTeacherByName(ctx context.Context, name string) (types.Teacher, error) {
	teachers, err := storage.FindAs[types.Teacher](ctx, d.store, storage.CollectionTeachers, storage.Eq("name", name))
	if err != nil {
		return types.Teacher{}, err
	}
	if len(teachers) == 0 {
		return types.Teacher{}, fmt.Errorf("%w: Guru %s tidak ditemukan", types.ErrNotFound, name)
	}
	return teachers[0], nil
}

// CreateStudent stores a student.
func (d *Directory) CreateStudent(ctx context.Context, s types.Student) (types.Student, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.MajorCode = strings.ToUpper(strings.TrimSpace(s.MajorCode))
	fields := map[string]string{}
	if s.Name == "" {
		fields["name"] = "Nama siswa wajib diisi"
	}
	if s.MajorCode == "" {
		fields["major_code"] = "Jurusan wajib diisi"
	}
	if len(fields) > 0 {
		return types.Student{}, types.NewValidationError(fields)
	}
	id, err := d.gen.NextID()
	if err != nil {
		return types.Student{}, fmt.Errorf("failed to generate ID: %w", err)
	}
	s.ID = id
	if err := d.store.Create(ctx, storage.CollectionStudents, storage.ID(id), s); err != nil {
		return types.Student{}, err
	}
	return s, nil
}

// StudentsByMajor lists students whose stored major equals majorCode.
func (d *Directory) StudentsByMajor(ctx context.Context, majorCode string) ([]types.Student, error) {
	return storage.FindAs[types.Student](ctx, d.store, storage.CollectionStudents, storage.Eq("major_code", strings.ToUpper(majorCode)))
}
