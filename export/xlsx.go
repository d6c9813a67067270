// Package export writes schedule records to spreadsheets.
package export

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/songzhibin97/jadwal-engine/schedule"
	"github.com/songzhibin97/jadwal-engine/types"
)

var ErrNoSchedules = errors.New("tidak ada jadwal untuk diekspor")

var header = []string{"Hari", "Jam", "Waktu", "Mata Pelajaran", "Guru", "Ruangan", "Kegiatan", "Status"}

var colWidths = []float64{10, 8, 14, 28, 24, 14, 16, 22}

// WriteSchedules writes one sheet per class, sheets ordered by class name and
// rows by day and start time. The subject cell is filled with the record colour.
func WriteSchedules(w io.Writer, records []types.ScheduleRecord, rules *schedule.Rules) error {
	if len(records) == 0 {
		return ErrNoSchedules
	}

	byClass := make(map[string][]types.ScheduleRecord)
	for _, rec := range records {
		byClass[rec.ClassName] = append(byClass[rec.ClassName], rec)
	}
	classes := make([]string, 0, len(byClass))
	for name := range byClass {
		classes = append(classes, name)
	}
	sort.Strings(classes)

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	fills := make(map[string]int)

	used := make(map[string]bool)
	for i, class := range classes {
		sheet := sheetName(class, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", sheet, err)
		}

		for c, title := range header {
			col := colName(c)
			if err := f.SetCellValue(sheet, cell(col, 1), title); err != nil {
				return err
			}
			if err := f.SetColWidth(sheet, col, col, colWidths[c]); err != nil {
				return err
			}
		}
		if err := f.SetCellStyle(sheet, "A1", cell(colName(len(header)-1), 1), headerStyle); err != nil {
			return err
		}

		rows := byClass[class]
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Day.Index() != rows[j].Day.Index() {
				return rows[i].Day.Index() < rows[j].Day.Index()
			}
			return rows[i].StartTime < rows[j].StartTime
		})

		for r, rec := range rows {
			row := r + 2
			values := []interface{}{
				string(rec.Day),
				rec.SlotKey,
				fmt.Sprintf("%s-%s", rec.StartTime, rec.EndTime),
				rec.SubjectName,
				teacherLabel(rec),
				rec.Room,
				rec.ActivityType,
				rec.EffectiveStatus().Text(),
			}
			for c, v := range values {
				if err := f.SetCellValue(sheet, cell(colName(c), row), v); err != nil {
					return err
				}
			}

			color := rules.ColorFor(rec)
			style, ok := fills[color]
			if !ok {
				style, err = f.NewStyle(&excelize.Style{
					Font: &excelize.Font{Color: "#FFFFFF"},
					Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
				})
				if err != nil {
					return fmt.Errorf("failed to create fill %s: %w", color, err)
				}
				fills[color] = style
			}
			subject := cell(colName(3), row)
			if err := f.SetCellStyle(sheet, subject, subject, style); err != nil {
				return err
			}
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func teacherLabel(rec types.ScheduleRecord) string {
	if rec.TeacherName != "" {
		return rec.TeacherName
	}
	return fmt.Sprintf("#%d", rec.TeacherID)
}

// sheetName makes a class name a valid, unique sheet name.
func sheetName(class string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(class))
	if name == "" {
		name = "Tanpa Kelas"
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	base := name
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		runes := []rune(base)
		if len(runes)+len(suffix) > 31 {
			runes = runes[:31-len(suffix)]
		}
		name = string(runes) + suffix
	}
	used[name] = true
	return name
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
