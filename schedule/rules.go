// Package schedule holds the derivation and validation rules of schedule records.
package schedule

import (
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/songzhibin97/jadwal-engine/types"
)

// Palette is the colour reference data used by ColorFor.
type Palette struct {
	Classes []string
	Rooms   []string
	Default string
}

// DefaultPalette returns the colours used by the admin app.
func DefaultPalette() Palette {
	return Palette{
		Classes: []string{"#4F46E5", "#0EA5E9", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6", "#EC4899", "#14B8A6"},
		Rooms:   []string{"#64748B", "#78716C", "#6B7280", "#71717A"},
		Default: "#9CA3AF",
	}
}

var fieldLabels = map[string]string{
	"subject_name": "Mata pelajaran",
	"teacher_id":   "Guru",
	"teacher_name": "Guru",
	"major_code":   "Jurusan",
	"class_name":   "Kelas",
	"day":          "Hari",
	"slot_key":     "Jam pelajaran",
	"room":         "Ruangan",
	"semester":     "Semester",
}

// Rules applies the schedule record rules against injected reference data.
type Rules struct {
	table    *Table
	palette  Palette
	validate *validator.Validate
}

// NewRules creates Rules; nil table and empty palette fall back to defaults.
func NewRules(table *Table, palette Palette) *Rules {
	if table == nil {
		table = DefaultTable()
	}
	if palette.Default == "" {
		palette = DefaultPalette()
	}

	v, err := newValidator()
	if err != nil {
		panic(fmt.Sprintf("schedule: %v", err))
	}
	return &Rules{table: table, palette: palette, validate: v}
}

// newValidator reports fields by their json names and knows the "day" tag.
func newValidator() (*validator.Validate, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	err := v.RegisterValidation("day", func(fl validator.FieldLevel) bool {
		return types.Day(fl.Field().String()).Valid()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register day validation: %w", err)
	}
	return v, nil
}

// Normalize trims the free-text fields and upper-cases the major code, so a
// blank value counts as missing.
func Normalize(rec *types.ScheduleRecord) {
	rec.SubjectName = strings.TrimSpace(rec.SubjectName)
	rec.TeacherName = strings.TrimSpace(rec.TeacherName)
	rec.MajorCode = strings.ToUpper(strings.TrimSpace(rec.MajorCode))
	rec.ClassName = strings.TrimSpace(rec.ClassName)
	rec.SlotKey = strings.TrimSpace(rec.SlotKey)
	rec.Room = strings.TrimSpace(rec.Room)
}

// Table returns the slot table in use.
func (r *Rules) Table() *Table {
	return r.table
}

// DeriveTimeRange resolves the slot of (day, slotKey).
func (r *Rules) DeriveTimeRange(day types.Day, slotKey string) (types.TimeSlot, error) {
	return r.table.Lookup(day, slotKey)
}

// ApplyTimeRange overwrites the record's times with the ones derived from its
// day and slot; caller-supplied times are never trusted.
func (r *Rules) ApplyTimeRange(rec *types.ScheduleRecord) error {
	slot, err := r.DeriveTimeRange(rec.Day, rec.SlotKey)
	if err != nil {
		return err
	}
	rec.StartTime = slot.StartTime
	rec.EndTime = slot.EndTime
	return nil
}

// Result of Validate.
type Result struct {
	Valid       bool
	FieldErrors map[string]string
}

// Err converts an invalid result to a *types.ValidationError.
func (res Result) Err() error {
	if res.Valid {
		return nil
	}
	return types.NewValidationError(res.FieldErrors)
}

// Validate checks required fields and the day/slot combination on the
// normalized record. Cross-record conflicts are not checked.
func (r *Rules) Validate(rec types.ScheduleRecord) Result {
	Normalize(&rec)
	fields := make(map[string]string)

	if err := r.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			fields["_"] = err.Error()
		}
		for _, fe := range verrs {
			field := fe.Field()
			if field == "teacher_name" {
				// reported once under teacher_id
				field = "teacher_id"
			}
			fields[field] = message(field, fe.Tag())
		}
	}

	_, dayErr := fields["day"]
	_, slotErr := fields["slot_key"]
	if !dayErr && !slotErr {
		if _, err := r.table.Lookup(rec.Day, rec.SlotKey); err != nil {
			fields["slot_key"] = fmt.Sprintf("Jam pelajaran %s tidak tersedia pada hari %s", rec.SlotKey, rec.Day)
		}
	}

	return Result{Valid: len(fields) == 0, FieldErrors: fields}
}

func message(field, tag string) string {
	label, ok := fieldLabels[field]
	if !ok {
		label = field
	}
	switch tag {
	case "required", "required_without":
		return label + " wajib diisi"
	default:
		return label + " tidak valid"
	}
}

// ColorFor picks the display colour of a record: by class name, then by room,
// then the palette default.
func (r *Rules) ColorFor(rec types.ScheduleRecord) string {
	if rec.ClassName != "" && len(r.palette.Classes) > 0 {
		return pick(r.palette.Classes, rec.ClassName)
	}
	if rec.Room != "" && len(r.palette.Rooms) > 0 {
		return pick(r.palette.Rooms, rec.Room)
	}
	return r.palette.Default
}

func pick(colors []string, key string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(strings.TrimSpace(key))))
	return colors[h.Sum32()%uint32(len(colors))]
}

// ConflictKeys returns the keys under which two records at the same slot
// would collide (teacher, room, class).
func ConflictKeys(rec types.ScheduleRecord) []string {
	slot := fmt.Sprintf("%s|%s|%s|%s", rec.AcademicYear, rec.Semester, rec.Day, rec.SlotKey)
	teacher := rec.TeacherName
	if rec.TeacherID != 0 {
		teacher = fmt.Sprintf("#%d", rec.TeacherID)
	}
	keys := make([]string, 0, 3)
	if teacher != "" {
		keys = append(keys, "teacher|"+slot+"|"+teacher)
	}
	if rec.Room != "" {
		keys = append(keys, "room|"+slot+"|"+strings.ToUpper(rec.Room))
	}
	if rec.ClassName != "" {
		keys = append(keys, "class|"+slot+"|"+strings.ToUpper(rec.ClassName))
	}
	return keys
}
