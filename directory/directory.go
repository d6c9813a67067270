// Package directory resolves classes and majors and maintains the
// jurusan, kelas, guru and siswa collections.
package directory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/jadwal-engine/storage"
	"github.com/songzhibin97/jadwal-engine/types"
)

// Unassigned is returned by FindHomeroomTeacher when a class has no homeroom teacher.
const Unassigned = "Belum ditentukan"

// Config is the immutable reference data of the directory.
type Config struct {
	Majors []types.Major
}

// DefaultConfig lists the majors offered by the school.
func DefaultConfig() Config {
	return Config{
		Majors: []types.Major{
			{Code: "TKJ", Name: "Teknik Komputer dan Jaringan", Active: true},
			{Code: "TKR", Name: "Teknik Kendaraan Ringan", Active: true},
		},
	}
}

// Directory is the class directory backed by a document store.
type Directory struct {
	store    storage.Store
	gen      generator.Generator
	cfg      Config
	codes    []string // major codes, longest first
	validate *validator.Validate
	logger   logrus.FieldLogger
	now      func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Directory) { d.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// New creates a Directory.
func New(store storage.Store, gen generator.Generator, cfg Config, opts ...Option) (*Directory, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}

	codes := make([]string, 0, len(cfg.Majors))
	for _, m := range cfg.Majors {
		codes = append(codes, strings.ToUpper(m.Code))
	}
	sort.SliceStable(codes, func(i, j int) bool { return len(codes[i]) > len(codes[j]) })

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})

	d := &Directory{
		store:    store,
		gen:      gen,
		cfg:      cfg,
		codes:    codes,
		validate: v,
		logger:   logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ResolveMajorFromClassName tags a class name with the major whose code it
// contains ("XI TKJ 2" → "TKJ"). Callers treat ErrNotFound as "cannot route",
// not as a failure.
func (d *Directory) ResolveMajorFromClassName(className string) (string, error) {
	upper := strings.ToUpper(className)
	for _, code := range d.codes {
		if strings.Contains(upper, code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: jurusan untuk kelas %q", types.ErrNotFound, className)
}

// Majors returns the canonical majors from configuration.
func (d *Directory) Majors() []types.Major {
	out := make([]types.Major, len(d.cfg.Majors))
	copy(out, d.cfg.Majors)
	return out
}

// majorDoc mirrors stored majors; older documents may lack "active".
type majorDoc struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

// normalize applies the read-time default: a missing active flag means active.
func (m majorDoc) normalize() types.Major {
	active := m.Active == nil || *m.Active
	return types.Major{Code: m.Code, Name: m.Name, Active: active}
}

// SeedMajors stores every configured major that is not stored yet.
func (d *Directory) SeedMajors(ctx context.Context) error {
	for _, m := range d.cfg.Majors {
		err := d.store.Create(ctx, storage.CollectionMajors, m.Code, m)
		if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("failed to seed major %s: %w", m.Code, err)
		}
	}
	return nil
}

// CreateMajor stores a new major.
func (d *Directory) CreateMajor(ctx context.Context, m types.Major) (types.Major, error) {
	m.Code = strings.ToUpper(strings.TrimSpace(m.Code))
	m.Name = strings.TrimSpace(m.Name)
	fields := map[string]string{}
	if m.Code == "" {
		fields["code"] = "Kode jurusan wajib diisi"
	}
	if m.Name == "" {
		fields["name"] = "Nama jurusan wajib diisi"
	}
	if len(fields) > 0 {
		return types.Major{}, types.NewValidationError(fields)
	}

	m.Active = true
	if err := d.store.Create(ctx, storage.CollectionMajors, m.Code, m); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return types.Major{}, fmt.Errorf("%w: Jurusan %s sudah ada", types.ErrDuplicateName, m.Code)
		}
		return types.Major{}, err
	}
	return m, nil
}

// GetMajor loads a stored major.
func (d *Directory) GetMajor(ctx context.Context, code string) (types.Major, error) {
	doc, err := storage.GetAs[majorDoc](ctx, d.store, storage.CollectionMajors, strings.ToUpper(code))
	if err != nil {
		return types.Major{}, notFound(err, "Jurusan %s tidak ditemukan", code)
	}
	return doc.normalize(), nil
}

// ListMajors returns stored majors ordered by code.
func (d *Directory) ListMajors(ctx context.Context, activeOnly bool) ([]types.Major, error) {
	docs, err := storage.FindAs[majorDoc](ctx, d.store, storage.CollectionMajors)
	if err != nil {
		return nil, err
	}
	out := make([]types.Major, 0, len(docs))
	for _, doc := range docs {
		m := doc.normalize()
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// DeactivateMajor soft-deletes a major.
func (d *Directory) DeactivateMajor(ctx context.Context, code string) error {
	code = strings.ToUpper(code)
	if err := d.store.Update(ctx, storage.CollectionMajors, code, map[string]interface{}{"active": false}); err != nil {
		return notFound(err, "Jurusan %s tidak ditemukan", code)
	}
	return nil
}

// DeleteMajor removes a major that no class references.
func (d *Directory) DeleteMajor(ctx context.Context, code string) error {
	code = strings.ToUpper(code)
	classes, err := d.store.Find(ctx, storage.CollectionClasses, storage.Eq("major_code", code))
	if err != nil {
		return err
	}
	if len(classes) > 0 {
		return fmt.Errorf("%w: Jurusan %s masih memiliki %d kelas", types.ErrMajorInUse, code, len(classes))
	}
	if err := d.store.Delete(ctx, storage.CollectionMajors, code); err != nil {
		return notFound(err, "Jurusan %s tidak ditemukan", code)
	}
	return nil
}

// notFound maps storage.ErrNotFound to types.ErrNotFound with a readable reason.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
