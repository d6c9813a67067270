package notify

import (
	"fmt"

	"github.com/songzhibin97/jadwal-engine/types"
)

// compose renders the fixed Indonesian subject and message of a category.
func compose(cat types.Category, action types.ApprovalAction, g classGroup) (string, string) {
	name := action.Actor.Name
	n := len(g.records)
	class := g.className

	switch cat {
	case types.CategoryCreate:
		if action.Event == types.EventSubmit {
			return "Jadwal Baru Menunggu Persetujuan",
				fmt.Sprintf("Admin %s menambahkan %d jadwal untuk kelas %s. Mohon ditinjau.", name, n, class)
		}
		return "Jadwal Baru",
			fmt.Sprintf("%d jadwal baru untuk kelas %s telah dipublikasikan.", n, class)

	case types.CategoryUpdate:
		if action.Event == types.EventSubmit {
			return "Perubahan Jadwal Menunggu Persetujuan",
				fmt.Sprintf("Admin %s mengubah %d jadwal kelas %s. Mohon ditinjau ulang.", name, n, class)
		}
		return "Jadwal Diperbarui",
			fmt.Sprintf("%d jadwal kelas %s telah diperbarui.%s", n, class, firstSession(g))

	case types.CategoryDelete:
		return "Jadwal Dihapus",
			fmt.Sprintf("Admin %s menghapus %d jadwal kelas %s.%s", name, n, class, firstSession(g))

	case types.CategoryApproved:
		return "Jadwal Disetujui",
			fmt.Sprintf("Kaprodi %s (%s) menyetujui %d jadwal kelas %s. Status: %s.",
				action.Actor.MajorCode(), name, n, class, action.ToStatus.Text())

	case types.CategoryRejected:
		return "Jadwal Ditolak",
			fmt.Sprintf("Kaprodi %s (%s) menolak %d jadwal kelas %s. Status: %s.",
				action.Actor.MajorCode(), name, n, class, action.ToStatus.Text())

	case types.CategoryNeedsRevision:
		msg := fmt.Sprintf("Kaprodi %s (%s) meminta revisi %d jadwal kelas %s. Status: %s.",
			action.Actor.MajorCode(), name, n, class, action.ToStatus.Text())
		if action.Comment != "" {
			msg += " Catatan: " + action.Comment
		}
		return "Jadwal Perlu Revisi", msg

	case types.CategoryComment:
		return "Komentar Kaprodi",
			fmt.Sprintf("Kaprodi %s (%s) tentang %d jadwal kelas %s: %s",
				action.Actor.MajorCode(), name, n, class, action.Comment)
	}
	return string(cat), ""
}

// firstSession describes the first record of a group, e.g. " Matematika, Senin 07:30-08:15."
func firstSession(g classGroup) string {
	if len(g.records) == 0 {
		return ""
	}
	rec := g.records[0]
	if rec.StartTime == "" {
		return fmt.Sprintf(" %s, %s.", rec.SubjectName, rec.Day)
	}
	return fmt.Sprintf(" %s, %s %s-%s.", rec.SubjectName, rec.Day, rec.StartTime, rec.EndTime)
}
