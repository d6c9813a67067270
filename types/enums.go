package types

import "strings"

// Day of the school week, in Indonesian as stored by the admin app.
type Day string

const (
	Senin  Day = "Senin"
	Selasa Day = "Selasa"
	Rabu   Day = "Rabu"
	Kamis  Day = "Kamis"
	Jumat  Day = "Jumat"
	Sabtu  Day = "Sabtu"
)

// Days lists school days in week order.
var Days = []Day{Senin, Selasa, Rabu, Kamis, Jumat, Sabtu}

// Valid reports whether d is a school day.
func (d Day) Valid() bool {
	return d.Index() >= 0
}

// Index is the position of d in the week, or -1.
func (d Day) Index() int {
	for i, day := range Days {
		if day == d {
			return i
		}
	}
	return -1
}

// Grade of a class section.
type Grade string

const (
	GradeX   Grade = "X"
	GradeXI  Grade = "XI"
	GradeXII Grade = "XII"
)

// Semester of an academic year.
type Semester string

const (
	Ganjil Semester = "Ganjil"
	Genap  Semester = "Genap"
)

// Status of a schedule record in the approval workflow.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPending       Status = "pending"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusNeedsRevision Status = "needs_revision"
	StatusPublished     Status = "published"
)

// Text is the Indonesian label shown to users.
func (s Status) Text() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusPending:
		return "Menunggu Persetujuan"
	case StatusApproved:
		return "Disetujui"
	case StatusRejected:
		return "Ditolak"
	case StatusNeedsRevision:
		return "Perlu Revisi"
	case StatusPublished:
		return "Dipublikasikan"
	}
	return string(s)
}

// Event drives a workflow transition.
type Event string

const (
	EventCreate          Event = "create"
	EventEdit            Event = "edit"
	EventSubmit          Event = "submit"
	EventApprove         Event = "approve"
	EventReject          Event = "reject"
	EventRequestRevision Event = "request_revision"
	EventPublish         Event = "publish"
	EventDelete          Event = "delete"
	EventComment         Event = "comment"
)

// ChangeKind records what the admin last did to a record before submitting it.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
)

// Category of a notification.
type Category string

const (
	CategoryCreate        Category = "create"
	CategoryUpdate        Category = "update"
	CategoryDelete        Category = "delete"
	CategoryApproved      Category = "approved"
	CategoryRejected      Category = "rejected"
	CategoryNeedsRevision Category = "needs_revision"
	CategoryComment       Category = "comment"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleKaprodiTKJ Role = "kaprodi_tkj"
	RoleKaprodiTKR Role = "kaprodi_tkr"
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleKaprodiTKJ, RoleKaprodiTKR, RoleStudent, RoleTeacher:
		return true
	}
	return false
}

// IsKaprodi reports whether r is a program head role.
func (r Role) IsKaprodi() bool {
	switch r {
	case RoleKaprodiTKJ, RoleKaprodiTKR:
		return true
	case RoleAdmin, RoleStudent, RoleTeacher:
		return false
	}
	return false
}

// Major returns the major a kaprodi role is scoped to, or "".
func (r Role) Major() string {
	switch r {
	case RoleKaprodiTKJ:
		return "TKJ"
	case RoleKaprodiTKR:
		return "TKR"
	case RoleAdmin, RoleStudent, RoleTeacher:
		return ""
	}
	return ""
}

// KaprodiRoleFor maps a major code to its kaprodi role.
func KaprodiRoleFor(majorCode string) (Role, bool) {
	switch strings.ToUpper(majorCode) {
	case "TKJ":
		return RoleKaprodiTKJ, true
	case "TKR":
		return RoleKaprodiTKR, true
	}
	return "", false
}

// TargetRole is the audience of a notification request.
type TargetRole string

const (
	TargetKaprodi TargetRole = "kaprodi"
	TargetAdmin   TargetRole = "admin"
	TargetStudent TargetRole = "student"
	TargetTeacher TargetRole = "teacher"
)
