package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/songzhibin97/jadwal-engine/storage"
	"github.com/songzhibin97/jadwal-engine/types"
)

// ClassInput is the admin form for creating or editing a class.
type ClassInput struct {
	MajorCode     string      `json:"major_code" validate:"required"`
	Grade         types.Grade `json:"grade" validate:"required,oneof=X XI XII"`
	SectionNumber int         `json:"section_number" validate:"required,min=1"`
	Capacity      int         `json:"capacity" validate:"required,min=1"`
	Active        *bool       `json:"active,omitempty"`
}

var classLabels = map[string]string{
	"major_code":     "Jurusan",
	"grade":          "Tingkat",
	"section_number": "Nomor kelas",
	"capacity":       "Kapasitas",
}

// ClassName derives the unique display name of a class.
func ClassName(grade types.Grade, majorCode string, section int) string {
	return fmt.Sprintf("%s %s %d", grade, strings.ToUpper(majorCode), section)
}

// classDoc mirrors stored classes; older documents may lack "active".
type classDoc struct {
	types.ClassSection
	Active *bool `json:"active"`
}

func (c classDoc) normalize() types.ClassSection {
	cs := c.ClassSection
	cs.Active = c.Active == nil || *c.Active
	return cs
}

func (d *Directory) validateClass(in ClassInput) error {
	err := d.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		label := classLabels[fe.Field()]
		if fe.Tag() == "required" {
			fields[fe.Field()] = label + " wajib diisi"
		} else {
			fields[fe.Field()] = label + " tidak valid"
		}
	}
	return types.NewValidationError(fields)
}

func (d *Directory) loadClasses(ctx context.Context, filters ...storage.Filter) ([]types.ClassSection, error) {
	docs, err := storage.FindAs[classDoc](ctx, d.store, storage.CollectionClasses, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]types.ClassSection, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.normalize())
	}
	return out, nil
}

// ensureUniqueName fails when another active class already uses name.
func (d *Directory) ensureUniqueName(ctx context.Context, name string, selfID uint64) error {
	classes, err := d.loadClasses(ctx, storage.Eq("name", name))
	if err != nil {
		return err
	}
	for _, c := range classes {
		if c.Active && c.ID != selfID {
			return fmt.Errorf("%w: Kelas %s sudah ada", types.ErrDuplicateName, name)
		}
	}
	return nil
}

func (d *Directory) ensureMajorActive(ctx context.Context, code string) error {
	m, err := d.GetMajor(ctx, code)
	if err != nil {
		return err
	}
	if !m.Active {
		return fmt.Errorf("%w: Jurusan %s tidak aktif", types.ErrNotFound, m.Code)
	}
	return nil
}

// CreateClass validates the form, checks name uniqueness and stores the class.
func (d *Directory) CreateClass(ctx context.Context, in ClassInput) (types.ClassSection, error) {
	if err := d.validateClass(in); err != nil {
		return types.ClassSection{}, err
	}
	if err := d.ensureMajorActive(ctx, in.MajorCode); err != nil {
		return types.ClassSection{}, err
	}

	cs := types.ClassSection{
		Name:          ClassName(in.Grade, in.MajorCode, in.SectionNumber),
		MajorCode:     strings.ToUpper(in.MajorCode),
		Grade:         in.Grade,
		SectionNumber: in.SectionNumber,
		Capacity:      in.Capacity,
		Active:        in.Active == nil || *in.Active,
	}
	if cs.Active {
		if err := d.ensureUniqueName(ctx, cs.Name, 0); err != nil {
			return types.ClassSection{}, err
		}
	}

	id, err := d.gen.NextID()
	if err != nil {
		return types.ClassSection{}, fmt.Errorf("failed to generate ID: %w", err)
	}
	now := d.now()
	cs.ID = id
	cs.CreatedAt = now
	cs.UpdatedAt = now

	if err := d.store.Create(ctx, storage.CollectionClasses, storage.ID(id), cs); err != nil {
		return types.ClassSection{}, err
	}
	d.logger.WithFields(logrus.Fields{"class": cs.Name, "major": cs.MajorCode}).Info("class created")
	return cs, nil
}

// GetClass loads a class by id.
func (d *Directory) GetClass(ctx context.Context, id uint64) (types.ClassSection, error) {
	doc, err := storage.GetAs[classDoc](ctx, d.store, storage.CollectionClasses, storage.ID(id))
	if err != nil {
		return types.ClassSection{}, notFound(err, "Kelas %d tidak ditemukan", id)
	}
	return doc.normalize(), nil
}

// FindClassByName returns the active class with the given derived name.
func (d *Directory) FindClassByName(ctx context.Context, name string) (types.ClassSection, error) {
	classes, err := d.loadClasses(ctx, storage.Eq("name", name))
	if err != nil {
		return types.ClassSection{}, err
	}
	for _, c := range classes {
		if c.Active {
			return c, nil
		}
	}
	return types.ClassSection{}, fmt.Errorf("%w: Kelas %s tidak ditemukan", types.ErrNotFound, name)
}

// UpdateClass re-derives the name, re-checks uniqueness and bumps UpdatedAt.
func (d *Directory) UpdateClass(ctx context.Context, id uint64, in ClassInput) (types.ClassSection, error) {
	if err := d.validateClass(in); err != nil {
		return types.ClassSection{}, err
	}
	cs, err := d.GetClass(ctx, id)
	if err != nil {
		return types.ClassSection{}, err
	}
	if !strings.EqualFold(cs.MajorCode, in.MajorCode) {
		if err := d.ensureMajorActive(ctx, in.MajorCode); err != nil {
			return types.ClassSection{}, err
		}
	}

	oldName := cs.Name
	cs.MajorCode = strings.ToUpper(in.MajorCode)
	cs.Grade = in.Grade
	cs.SectionNumber = in.SectionNumber
	cs.Capacity = in.Capacity
	if in.Active != nil {
		cs.Active = *in.Active
	}
	cs.Name = ClassName(cs.Grade, cs.MajorCode, cs.SectionNumber)
	if cs.Active {
		if err := d.ensureUniqueName(ctx, cs.Name, cs.ID); err != nil {
			return types.ClassSection{}, err
		}
	}
	cs.UpdatedAt = d.now()

	if err := d.store.Put(ctx, storage.CollectionClasses, storage.ID(id), cs); err != nil {
		return types.ClassSection{}, err
	}
	if cs.HomeroomTeacherID != 0 && cs.Name != oldName {
		if err := d.setTeacherHomeroom(ctx, cs.HomeroomTeacherID, cs.Name); err != nil {
			return cs, err
		}
	}
	return cs, nil
}

// DeleteClass removes a class and clears its homeroom teacher's back-reference.
func (d *Directory) DeleteClass(ctx context.Context, id uint64) error {
	cs, err := d.GetClass(ctx, id)
	if err != nil {
		return err
	}
	if err := d.store.Delete(ctx, storage.CollectionClasses, storage.ID(id)); err != nil {
		return notFound(err, "Kelas %d tidak ditemukan", id)
	}
	if cs.HomeroomTeacherID != 0 {
		if err := d.setTeacherHomeroom(ctx, cs.HomeroomTeacherID, ""); err != nil {
			return err
		}
	}
	d.logger.WithField("class", cs.Name).Info("class deleted")
	return nil
}

// ListActiveClasses returns active classes ordered by name, optionally for one major.
func (d *Directory) ListActiveClasses(ctx context.Context, majorCode string) ([]types.ClassSection, error) {
	var filters []storage.Filter
	if majorCode != "" {
		filters = append(filters, storage.Eq("major_code", strings.ToUpper(majorCode)))
	}
	classes, err := d.loadClasses(ctx, filters...)
	if err != nil {
		return nil, err
	}
	out := classes[:0]
	for _, c := range classes {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindHomeroomTeacher returns the homeroom teacher's name, or Unassigned.
// It never fails: lookup errors are logged and reported as Unassigned.
func (d *Directory) FindHomeroomTeacher(ctx context.Context, className string) string {
	cs, err := d.FindClassByName(ctx, className)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			d.logger.WithError(err).WithField("class", className).Warn("homeroom lookup failed")
		}
		return Unassigned
	}
	if cs.HomeroomTeacherID == 0 {
		return Unassigned
	}
	t, err := d.GetTeacher(ctx, cs.HomeroomTeacherID)
	if err != nil {
		d.logger.WithError(err).WithField("class", className).Warn("homeroom teacher missing")
		return Unassigned
	}
	return t.Name
}

// AssignHomeroom makes teacherID the homeroom teacher of classID, keeping the
// teacher's back-reference and any previous assignment consistent.
func (d *Directory) AssignHomeroom(ctx context.Context, classID, teacherID uint64) (types.ClassSection, error) {
	cs, err := d.GetClass(ctx, classID)
	if err != nil {
		return types.ClassSection{}, err
	}
	teacher, err := d.GetTeacher(ctx, teacherID)
	if err != nil {
		return types.ClassSection{}, err
	}
	if cs.HomeroomTeacherID == teacherID {
		return cs, nil
	}

	// A teacher is homeroom of at most one class.
	if teacher.HomeroomClass != "" && teacher.HomeroomClass != cs.Name {
		if prev, err := d.FindClassByName(ctx, teacher.HomeroomClass); err == nil {
			if err := d.setClassHomeroom(ctx, prev.ID, 0); err != nil {
				return types.ClassSection{}, err
			}
		}
	}
	if cs.HomeroomTeacherID != 0 {
		if err := d.setTeacherHomeroom(ctx, cs.HomeroomTeacherID, ""); err != nil {
			return types.ClassSection{}, err
		}
	}

	if err := d.setClassHomeroom(ctx, cs.ID, teacherID); err != nil {
		return types.ClassSection{}, err
	}
	if err := d.setTeacherHomeroom(ctx, teacherID, cs.Name); err != nil {
		return types.ClassSection{}, err
	}
	return d.GetClass(ctx, classID)
}

// ClearHomeroom removes the homeroom assignment of a class.
func (d *Directory) ClearHomeroom(ctx context.Context, classID uint64) error {
	cs, err := d.GetClass(ctx, classID)
	if err != nil {
		return err
	}
	if cs.HomeroomTeacherID == 0 {
		return nil
	}
	if err := d.setClassHomeroom(ctx, cs.ID, 0); err != nil {
		return err
	}
	return d.setTeacherHomeroom(ctx, cs.HomeroomTeacherID, "")
}

func (d *Directory) setClassHomeroom(ctx context.Context, classID, teacherID uint64) error {
	return d.store.Update(ctx, storage.CollectionClasses, storage.ID(classID), map[string]interface{}{
		"homeroom_teacher_id": teacherID,
		"updated_at":          d.now().Format(time.RFC3339Nano),
	})
}

func (d *Directory) setTeacherHomeroom(ctx context.Context, teacherID uint64, className string) error {
	err := d.store.Update(ctx, storage.CollectionTeachers, storage.ID(teacherID), map[string]interface{}{
		"homeroom_class": className,
	})
	if errors.Is(err, storage.ErrNotFound) {
		d.logger.WithField("teacher_id", teacherID).Warn("homeroom teacher no longer exists")
		return nil
	}
	return err
}
