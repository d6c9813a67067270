package types

import "time"

// Major is an academic program (jurusan), keyed by its code.
type Major struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ClassSection is a class (kelas) within a grade and major.
type ClassSection struct {
	ID                uint64    `json:"id"`
	Name              string    `json:"name"` // derived: "<grade> <majorCode> <number>"
	MajorCode         string    `json:"major_code"`
	Grade             Grade     `json:"grade"`
	SectionNumber     int       `json:"section_number"`
	Capacity          int       `json:"capacity"`
	Active            bool      `json:"active"`
	HomeroomTeacherID uint64    `json:"homeroom_teacher_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Teacher is a member of the teacher directory.
type Teacher struct {
	ID            uint64 `json:"id"`
	Name          string `json:"name"`
	HomeroomClass string `json:"homeroom_class,omitempty"`
	PushToken     string `json:"push_token,omitempty"`
}

// Student only carries what notification fan-out needs.
type Student struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	MajorCode string `json:"major_code"`
	ClassName string `json:"class_name,omitempty"`
	PushToken string `json:"push_token,omitempty"`
}

// TimeSlot is immutable reference data describing one lesson period.
type TimeSlot struct {
	Key       string `json:"key"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Label     string `json:"label"`
	IsSpecial bool   `json:"is_special"`
}

// ScheduleRecord is one scheduled session (jadwal).
type ScheduleRecord struct {
	ID           uint64     `json:"id"`
	SubjectName  string     `json:"subject_name" validate:"required"`
	TeacherID    uint64     `json:"teacher_id" validate:"required_without=TeacherName"`
	TeacherName  string     `json:"teacher_name" validate:"required_without=TeacherID"`
	MajorCode    string     `json:"major_code" validate:"required"`
	ClassName    string     `json:"class_name" validate:"required"`
	Day          Day        `json:"day" validate:"required,day"`
	SlotKey      string     `json:"slot_key" validate:"required"`
	StartTime    string     `json:"start_time"`
	EndTime      string     `json:"end_time"`
	Room         string     `json:"room" validate:"required"`
	ActivityType string     `json:"activity_type"`
	Description  string     `json:"description"`
	AcademicYear string     `json:"academic_year"`
	Semester     Semester   `json:"semester" validate:"omitempty,oneof=Ganjil Genap"`
	Status       Status     `json:"status"`
	IsPublished  bool       `json:"is_published"`
	LastChange   ChangeKind `json:"last_change"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// EffectiveStatus reports Published for an approved record that has been
// published; the stored status itself never holds Published.
func (r ScheduleRecord) EffectiveStatus() Status {
	if r.Status == StatusApproved && r.IsPublished {
		return StatusPublished
	}
	return r.Status
}

// Actor is whoever triggers a workflow event.
type Actor struct {
	ID   uint64 `json:"id,omitempty"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// MajorCode of the actor, empty unless the actor is a kaprodi.
func (a Actor) MajorCode() string {
	return a.Role.Major()
}

// ApprovalAction is the ephemeral payload of one workflow transition.
type ApprovalAction struct {
	ID          string     `json:"id"`
	Event       Event      `json:"event"`
	Change      ChangeKind `json:"change,omitempty"`
	ScheduleIDs []uint64   `json:"schedule_ids"`
	FromStatus  Status     `json:"from_status,omitempty"` // empty when a batch started from mixed statuses
	ToStatus    Status     `json:"to_status,omitempty"`
	Actor       Actor      `json:"actor"`
	Comment     string     `json:"comment,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// SenderInfo identifies who a notification comes from.
type SenderInfo struct {
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	MajorCode string `json:"major_code,omitempty"`
}

// NotificationRequest is an outbox intent produced by routing a transition.
type NotificationRequest struct {
	ID           string     `json:"id"`
	ActionID     string     `json:"action_id"`
	TargetRole   TargetRole `json:"target_role"`
	TargetMajor  string     `json:"target_major,omitempty"`
	TargetUserID uint64     `json:"target_user_id,omitempty"`
	Category     Category   `json:"category"`
	Subject      string     `json:"subject"`
	Message      string     `json:"message"`
	ClassName    string     `json:"class_name,omitempty"`
	Count        int        `json:"count"`
	Sender       SenderInfo `json:"sender"`
	CreatedAt    time.Time  `json:"created_at"`
}
