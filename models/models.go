package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is one of the closed set of platform roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleStudent
}

type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserInactive  UserStatus = "INACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
)

func (s UserStatus) Valid() bool {
	return s == UserActive || s == UserInactive || s == UserSuspended
}

// Caller is the identity a request acts as. The zero value is anonymous.
type Caller struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

func (c Caller) Anonymous() bool { return c.ID == 0 }

// User struct represents an admin, teacher or student account
type User struct {
	ID           int64      `json:"id"`
	UUID         uuid.UUID  `json:"uuid"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	ProfileImage *string    `json:"profile_image"`
	PhoneNumber  *string    `json:"phone_number"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u User) FullName() string { return u.FirstName + " " + u.LastName }

// UserPatch carries the optional fields of an update; nil means unchanged.
type UserPatch struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash *string
	Role         *Role
	Status       *UserStatus
	ProfileImage *string
	PhoneNumber  *string
}

type UserFilter struct {
	Role   *Role
	Status *UserStatus
	Search string
}

// Grade struct represents a school grade (class level) for an academic year
type Grade struct {
	ID           int64     `json:"id"`
	UUID         uuid.UUID `json:"uuid"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	AcademicYear string    `json:"academic_year"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type GradeFilter struct {
	IsActive     *bool
	AcademicYear *string
	Search       string
}

// Subject struct represents a taught subject belonging to a grade
type Subject struct {
	ID          int64     `json:"id"`
	UUID        uuid.UUID `json:"uuid"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description *string   `json:"description"`
	IsActive    bool      `json:"is_active"`
	GradeID     int64     `json:"grade_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SubjectFilter struct {
	IsActive *bool
	GradeID  *int64
	Search   string
}

// Assignments lists the subject and grade ids linked to a user.
type Assignments struct {
	SubjectIDs []int64
	GradeIDs   []int64
}

type ExamStatus string

const (
	ExamDraft     ExamStatus = "DRAFT"
	ExamPublished ExamStatus = "PUBLISHED"
	ExamArchived  ExamStatus = "ARCHIVED"
)

func (s ExamStatus) Valid() bool {
	return s == ExamDraft || s == ExamPublished || s == ExamArchived
}

// Exam struct represents an exam authored by a teacher for a subject and grade
type Exam struct {
	ID               int64      `json:"id"`
	UUID             uuid.UUID  `json:"uuid"`
	Title            string     `json:"title"`
	Description      *string    `json:"description"`
	Instructions     *string    `json:"instructions"`
	SubjectID        int64      `json:"subject_id"`
	GradeID          int64      `json:"grade_id"`
	CreatedByID      int64      `json:"created_by_id"`
	Duration         int        `json:"duration"` // minutes
	Passmark         *float64   `json:"passmark"` // percentage
	ShuffleQuestions bool       `json:"shuffle_questions"`
	AllowReview      bool       `json:"allow_review"`
	ShowResults      bool       `json:"show_results"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
	Status           ExamStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TimeLimit is the exam duration as a time.Duration.
func (e Exam) TimeLimit() time.Duration {
	return time.Duration(e.Duration) * time.Minute
}

// ExamStats holds the computed exam fields.
type ExamStats struct {
	QuestionCount int      `json:"question_count"`
	TotalPoints   float64  `json:"total_points"`
	AverageScore  *float64 `json:"average_score"`
	PassRate      *float64 `json:"pass_rate"`
}

type ExamFilter struct {
	SubjectID   *int64
	GradeID     *int64
	Status      *ExamStatus
	CreatedByID *int64
	Search      string
	Scope       ExamScope
}

// ExamScope restricts exam listings to what a caller may see. A zero
// value means unrestricted.
type ExamScope struct {
	Restricted bool
	// Teacher visibility: created by CreatorID, or in one of SubjectIDs or GradeIDs.
	CreatorID  int64
	SubjectIDs []int64
	GradeIDs   []int64
	// Student visibility: PUBLISHED and in one of GradeIDs.
	PublishedOnly bool
}

type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TrueFalse      QuestionType = "TRUE_FALSE"
	ShortAnswer    QuestionType = "SHORT_ANSWER"
	Essay          QuestionType = "ESSAY"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer, Essay:
		return true
	}
	return false
}

// AutoGradable reports whether answers can be marked by exact comparison.
func (t QuestionType) AutoGradable() bool {
	return t == MultipleChoice || t == TrueFalse
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Question struct represents one numbered question of an exam
type Question struct {
	ID              int64        `json:"id"`
	UUID            uuid.UUID    `json:"uuid"`
	ExamID          int64        `json:"exam_id"`
	QuestionNumber  int          `json:"question_number"`
	Text            string       `json:"text"`
	Type            QuestionType `json:"type"`
	Options         []string     `json:"options"`
	CorrectAnswer   *string      `json:"correct_answer"`
	Points          float64      `json:"points"`
	DifficultyLevel *Difficulty  `json:"difficulty_level"`
	Tags            []string     `json:"tags"`
	Feedback        *string      `json:"feedback"`
	Image           *string      `json:"image"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptCompleted  AttemptStatus = "COMPLETED"
	AttemptGraded     AttemptStatus = "GRADED"
)

func (s AttemptStatus) Valid() bool {
	return s == AttemptInProgress || s == AttemptCompleted || s == AttemptGraded
}

// Finished reports whether the attempt can no longer change.
func (s AttemptStatus) Finished() bool {
	return s == AttemptCompleted || s == AttemptGraded
}

// ExamAttempt struct represents a student's attempt at an exam
type ExamAttempt struct {
	ID        int64         `json:"id"`
	UUID      uuid.UUID     `json:"uuid"`
	ExamID    int64         `json:"exam_id"`
	StudentID int64         `json:"student_id"`
	Status    AttemptStatus `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time"`
	Score     *float64      `json:"score"`
	IsPassed  *bool         `json:"is_passed"`
	TimeSpent *int          `json:"time_spent"` // seconds
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type AttemptFilter struct {
	ExamID    *int64
	StudentID *int64
	Status    *AttemptStatus
	Scope     AttemptScope
}

// AttemptScope restricts attempt listings. A zero value means unrestricted.
type AttemptScope struct {
	Restricted bool
	StudentID  int64
	// Teacher visibility: exams created by CreatorID or in SubjectIDs.
	CreatorID  int64
	SubjectIDs []int64
}

// Answer struct represents a student's current answer to one question
type Answer struct {
	ID             int64     `json:"id"`
	AttemptID      int64     `json:"attempt_id"`
	QuestionID     int64     `json:"question_id"`
	SelectedAnswer *string   `json:"selected_answer"`
	IsCorrect      *bool     `json:"is_correct"`
	IsMarked       bool      `json:"is_marked"`
	TimeTaken      *int      `json:"time_taken"` // seconds
	AnsweredAt     time.Time `json:"answered_at"`
}

// AnswerUpsert is one answer write. Nil fields leave the stored value in
// place. Clear wipes the stored selection and its correctness.
type AnswerUpsert struct {
	QuestionID int64
	Selected   *string
	Clear      bool
	IsCorrect  *bool
	IsMarked   *bool
	TimeTaken  *int
}

// Finalization is the write that completes an attempt.
type Finalization struct {
	AttemptID int64
	EndTime   time.Time
	TimeSpent int
	Score     float64
	IsPassed  *bool
}

// Notification struct represents a message shown to one user
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// AdminEvent struct represents an audit log entry
type AdminEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target"`
	Notes     string    `json:"notes"`
}

// ErrorLog struct represents an ingestion validation failure
type ErrorLog struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	FilePath     string    `json:"file_path"`
	LineNumber   int       `json:"line_number"`
	FieldName    string    `json:"field_name"`
	ErrorMessage string    `json:"error_message"`
	SuggestedFix string    `json:"suggested_fix"`
}

// QuestionStats struct aggregates answer outcomes for one question
type QuestionStats struct {
	QuestionID     int64        `json:"question_id"`
	ExamTitle      string       `json:"exam_title"`
	QuestionNumber int          `json:"question_number"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	TimesAnswered  int          `json:"times_answered"`
	CorrectCount   int          `json:"correct_count"`
}

// DashboardStats feeds the admin dashboard.
type DashboardStats struct {
	Users            int
	Exams            int
	PublishedExams   int
	AttemptsTaken    int
	AttemptsFinished int
	IngestionErrors  int
}

// ListOptions carries sort and keyset pagination for list queries.
type ListOptions struct {
	SortField  string
	Descending bool
	First      int
	After      *int64
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Limit clamps First into [1, MaxPageSize].
func (o ListOptions) Limit() int {
	switch {
	case o.First <= 0:
		return DefaultPageSize
	case o.First > MaxPageSize:
		return MaxPageSize
	}
	return o.First
}

// Page is one slice of a keyset-paginated list.
type Page[T any] struct {
	Items           []T
	TotalCount      int
	HasNextPage     bool
	HasPreviousPage bool
}
