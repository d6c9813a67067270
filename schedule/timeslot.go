package schedule

import (
	"fmt"

	"github.com/songzhibin97/jadwal-engine/types"
)

// DayType selects which slot table applies to a day.
type DayType string

const (
	DayRegular DayType = "regular"
	DayFriday  DayType = "friday"
)

// DayTypeOf returns DayFriday for Jumat and DayRegular otherwise.
func DayTypeOf(day types.Day) DayType {
	if day == types.Jumat {
		return DayFriday
	}
	return DayRegular
}

// Table is the immutable time-slot reference data.
type Table struct {
	slots map[DayType][]types.TimeSlot
	index map[DayType]map[string]types.TimeSlot
}

// NewTable builds a Table from ordered slot lists.
func NewTable(regular, friday []types.TimeSlot) *Table {
	t := &Table{
		slots: map[DayType][]types.TimeSlot{DayRegular: regular, DayFriday: friday},
		index: make(map[DayType]map[string]types.TimeSlot, 2),
	}
	for dt, list := range t.slots {
		m := make(map[string]types.TimeSlot, len(list))
		for _, s := range list {
			m[s.Key] = s
		}
		t.index[dt] = m
	}
	return t
}

func lesson(key, start, end string) types.TimeSlot {
	return types.TimeSlot{
		Key:       key,
		StartTime: start,
		EndTime:   end,
		Label:     fmt.Sprintf("Jam ke-%s (%s - %s)", key, start, end),
	}
}

func special(key, label, start, end string) types.TimeSlot {
	return types.TimeSlot{
		Key:       key,
		StartTime: start,
		EndTime:   end,
		Label:     fmt.Sprintf("%s (%s - %s)", label, start, end),
		IsSpecial: true,
	}
}

// DefaultTable is the bell schedule used by the school.
func DefaultTable() *Table {
	regular := []types.TimeSlot{
		special("upacara", "Upacara/Apel", "07:00", "07:30"),
		lesson("1", "07:30", "08:15"),
		lesson("2", "08:15", "09:00"),
		lesson("3", "09:00", "09:45"),
		special("istirahat1", "Istirahat", "09:45", "10:00"),
		lesson("4", "10:00", "10:45"),
		lesson("5", "10:45", "11:30"),
		lesson("6", "11:30", "12:15"),
		special("ishoma", "Ishoma", "12:15", "12:45"),
		lesson("7", "12:45", "13:30"),
		lesson("8", "13:30", "14:15"),
		lesson("9", "14:15", "15:00"),
		lesson("10", "15:00", "15:45"),
	}
	friday := []types.TimeSlot{
		special("senam", "Senam/Kegiatan Pagi", "07:00", "07:30"),
		lesson("1", "07:30", "08:10"),
		lesson("2", "08:10", "08:50"),
		lesson("3", "08:50", "09:30"),
		special("istirahat1", "Istirahat", "09:30", "09:45"),
		lesson("4", "09:45", "10:25"),
		lesson("5", "10:25", "11:05"),
		special("jumatan", "Sholat Jumat", "11:05", "13:00"),
		lesson("6", "13:00", "13:40"),
		lesson("7", "13:40", "14:20"),
	}
	return NewTable(regular, friday)
}

// Lookup resolves a slot for a day, failing with ErrInvalidSlot when the key
// is not part of that day type's table.
func (t *Table) Lookup(day types.Day, slotKey string) (types.TimeSlot, error) {
	if !day.Valid() {
		return types.TimeSlot{}, fmt.Errorf("%w: hari %q tidak dikenal", types.ErrInvalidSlot, day)
	}
	slot, ok := t.index[DayTypeOf(day)][slotKey]
	if !ok {
		return types.TimeSlot{}, fmt.Errorf("%w: jam %q tidak tersedia pada hari %s", types.ErrInvalidSlot, slotKey, day)
	}
	return slot, nil
}

// Slots lists the slots of a day in bell order.
func (t *Table) Slots(day types.Day) []types.TimeSlot {
	list := t.slots[DayTypeOf(day)]
	out := make([]types.TimeSlot, len(list))
	copy(out, list)
	return out
}
