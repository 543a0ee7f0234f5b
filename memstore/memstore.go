// Package memstore keeps every record in process memory. It satisfies the
// same persistence interfaces as the Postgres store, with the same
// uniqueness and conditional-update rules, and backs the service tests and
// the --memory development mode.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcsh-server/db"
	"mcsh-server/models"
)

// Event is one recorded admin action.
type Event struct {
	Actor, Action, Target, Notes string
	At                           time.Time
}

// Store is safe for concurrent use. Tests may seed the exported maps
// directly before any concurrent access starts.
type Store struct {
	mu     sync.Mutex
	nextID int64

	Users         map[int64]models.User
	Grades        map[int64]models.Grade
	Subjects      map[int64]models.Subject
	Exams         map[int64]models.Exam
	Questions     map[int64]models.Question
	Attempts      map[int64]models.ExamAttempt
	Answers       map[[2]int64]models.Answer // keyed by attempt and question
	Notifications map[int64]models.Notification
	Teaching      map[int64]models.Assignments
	Enrolled      map[int64][]int64
	Events        []Event
	ErrorLogs     []models.ErrorLog

	// FailNotifications and FailAssignments make the matching writes fail.
	FailNotifications bool
	FailAssignments   bool
}

func New() *Store {
	return &Store{
		nextID:        1000,
		Users:         map[int64]models.User{},
		Grades:        map[int64]models.Grade{},
		Subjects:      map[int64]models.Subject{},
		Exams:         map[int64]models.Exam{},
		Questions:     map[int64]models.Question{},
		Attempts:      map[int64]models.ExamAttempt{},
		Answers:       map[[2]int64]models.Answer{},
		Notifications: map[int64]models.Notification{},
		Teaching:      map[int64]models.Assignments{},
		Enrolled:      map[int64][]int64{},
	}
}

func (m *Store) Ping(context.Context) error { return nil }

func (m *Store) id() int64 {
	m.nextID++
	return m.nextID
}

func missing(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, db.ErrNotFound)
}

// page applies keyset pagination over items ordered by id.
func page[T any](items []T, id func(T) int64, opts models.ListOptions) models.Page[T] {
	slices.SortFunc(items, func(a, b T) int {
		if opts.Descending {
			return cmp.Compare(id(b), id(a))
		}
		return cmp.Compare(id(a), id(b))
	})
	p := models.Page[T]{TotalCount: len(items), HasPreviousPage: opts.After != nil}
	if opts.After != nil {
		i := slices.IndexFunc(items, func(t T) bool {
			if opts.Descending {
				return id(t) < *opts.After
			}
			return id(t) > *opts.After
		})
		if i < 0 {
			i = len(items)
		}
		items = items[i:]
	}
	if n := opts.Limit(); len(items) > n {
		items, p.HasNextPage = items[:n], true
	}
	p.Items = items
	return p
}

func contains(s, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Users

func (m *Store) GetUser(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return u, missing("user", id)
	}
	return u, nil
}

func (m *Store) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, missing("user", email)
}

func (m *Store) ListUsers(_ context.Context, f models.UserFilter, opts models.ListOptions) (models.Page[models.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.Users {
		if f.Role != nil && u.Role != *f.Role || f.Status != nil && u.Status != *f.Status {
			continue
		}
		if !contains(u.FullName()+" "+u.Email, f.Search) {
			continue
		}
		out = append(out, u)
	}
	return page(out, func(u models.User) int64 { return u.ID }, opts), nil
}

func (m *Store) emailTaken(u models.User) bool {
	for _, o := range m.Users {
		if o.ID != u.ID && strings.EqualFold(o.Email, u.Email) {
			return true
		}
	}
	return false
}

func (m *Store) CreateUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTaken(u) {
		return u, fmt.Errorf("create user: %w", db.ErrDuplicate)
	}
	u.ID, u.UUID = m.id(), uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.Users[u.ID] = u
	return u, nil
}

func (m *Store) UpdateUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[u.ID]; !ok {
		return u, missing("user", u.ID)
	}
	if m.emailTaken(u) {
		return u, fmt.Errorf("update user: %w", db.ErrDuplicate)
	}
	u.UpdatedAt = time.Now()
	m.Users[u.ID] = u
	return u, nil
}

func (m *Store) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return missing("user", id)
	}
	u.LastLogin = &at
	m.Users[id] = u
	return nil
}

func (m *Store) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[id]; !ok {
		return missing("user", id)
	}
	for _, e := range m.Exams {
		if e.CreatedByID == id {
			return fmt.Errorf("delete user %d: %w", id, db.ErrForeignKey)
		}
	}
	delete(m.Users, id)
	delete(m.Teaching, id)
	delete(m.Enrolled, id)
	return nil
}

func (m *Store) UsersInGrade(_ context.Context, gradeID int64, role models.Role) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.Users {
		if u.Role != role {
			continue
		}
		ids := m.Enrolled[u.ID]
		if role == models.RoleTeacher {
			ids = m.Teaching[u.ID].GradeIDs
		}
		if slices.Contains(ids, gradeID) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b models.User) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Store) TeachersOfSubject(_ context.Context, subjectID int64) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for id, as := range m.Teaching {
		if u, ok := m.Users[id]; ok && slices.Contains(as.SubjectIDs, subjectID) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b models.User) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Grades and subjects

func (m *Store) GetGrade(_ context.Context, id int64) (models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.Grades[id]
	if !ok {
		return g, missing("grade", id)
	}
	return g, nil
}

func (m *Store) GetGradeByName(_ context.Context, name string) (models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.Grades {
		if g.Name == name {
			return g, nil
		}
	}
	return models.Grade{}, missing("grade", name)
}

func (m *Store) GradesByIDs(_ context.Context, ids []int64) ([]models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Grade
	for _, id := range ids {
		if g, ok := m.Grades[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *Store) ListGrades(_ context.Context, f models.GradeFilter, opts models.ListOptions) (models.Page[models.Grade], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Grade
	for _, g := range m.Grades {
		if f.IsActive != nil && g.IsActive != *f.IsActive || f.AcademicYear != nil && g.AcademicYear != *f.AcademicYear {
			continue
		}
		if contains(g.Name, f.Search) {
			out = append(out, g)
		}
	}
	return page(out, func(g models.Grade) int64 { return g.ID }, opts), nil
}

func (m *Store) CreateGrade(_ context.Context, g models.Grade) (models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.Grades {
		if o.Name == g.Name {
			return g, fmt.Errorf("create grade: %w", db.ErrDuplicate)
		}
	}
	g.ID, g.UUID = m.id(), uuid.New()
	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt
	m.Grades[g.ID] = g
	return g, nil
}

func (m *Store) UpdateGrade(_ context.Context, g models.Grade) (models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.Grades {
		if o.ID != g.ID && o.Name == g.Name {
			return g, fmt.Errorf("update grade: %w", db.ErrDuplicate)
		}
	}
	g.UpdatedAt = time.Now()
	m.Grades[g.ID] = g
	return g, nil
}

func (m *Store) GradeUsage(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Subjects {
		if s.GradeID == id {
			n++
		}
	}
	for _, e := range m.Exams {
		if e.GradeID == id {
			n++
		}
	}
	for _, gs := range m.Enrolled {
		if slices.Contains(gs, id) {
			n++
		}
	}
	return n, nil
}

func (m *Store) DeleteGrade(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Grades[id]; !ok {
		return missing("grade", id)
	}
	delete(m.Grades, id)
	return nil
}

func (m *Store) GetSubject(_ context.Context, id int64) (models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Subjects[id]
	if !ok {
		return s, missing("subject", id)
	}
	return s, nil
}

func (m *Store) GetSubjectByCode(_ context.Context, code string) (models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Subjects {
		if s.Code == code {
			return s, nil
		}
	}
	return models.Subject{}, missing("subject", code)
}

func (m *Store) SubjectsByIDs(_ context.Context, ids []int64) ([]models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subject
	for _, id := range ids {
		if s, ok := m.Subjects[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Store) ListSubjects(_ context.Context, f models.SubjectFilter, opts models.ListOptions) (models.Page[models.Subject], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subject
	for _, s := range m.Subjects {
		if f.GradeID != nil && s.GradeID != *f.GradeID || f.IsActive != nil && s.IsActive != *f.IsActive {
			continue
		}
		if contains(s.Name+" "+s.Code, f.Search) {
			out = append(out, s)
		}
	}
	return page(out, func(s models.Subject) int64 { return s.ID }, opts), nil
}

func (m *Store) codeTaken(s models.Subject) bool {
	for _, o := range m.Subjects {
		if o.ID != s.ID && o.Code == s.Code {
			return true
		}
	}
	return false
}

func (m *Store) CreateSubject(_ context.Context, s models.Subject) (models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codeTaken(s) {
		return s, fmt.Errorf("create subject: %w", db.ErrDuplicate)
	}
	if _, ok := m.Grades[s.GradeID]; !ok {
		return s, fmt.Errorf("create subject: %w", db.ErrForeignKey)
	}
	s.ID, s.UUID = m.id(), uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.Subjects[s.ID] = s
	return s, nil
}

func (m *Store) UpdateSubject(_ context.Context, s models.Subject) (models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codeTaken(s) {
		return s, fmt.Errorf("update subject: %w", db.ErrDuplicate)
	}
	s.UpdatedAt = time.Now()
	m.Subjects[s.ID] = s
	return s, nil
}

func (m *Store) DeleteSubject(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Subjects[id]; !ok {
		return missing("subject", id)
	}
	for _, e := range m.Exams {
		if e.SubjectID == id {
			return fmt.Errorf("delete subject %d: %w", id, db.ErrForeignKey)
		}
	}
	delete(m.Subjects, id)
	return nil
}

func (m *Store) ReplaceTeacherAssignments(_ context.Context, teacherID int64, subjectIDs, gradeIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAssignments {
		return errors.New("replace assignments: connection reset")
	}
	m.Teaching[teacherID] = models.Assignments{SubjectIDs: subjectIDs, GradeIDs: gradeIDs}
	return nil
}

func (m *Store) EnrollStudent(_ context.Context, studentID, gradeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.Enrolled[studentID], gradeID) {
		m.Enrolled[studentID] = append(m.Enrolled[studentID], gradeID)
	}
	return nil
}

func (m *Store) TeacherAssignments(_ context.Context, teacherID int64) (models.Assignments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Teaching[teacherID], nil
}

func (m *Store) StudentGradeIDs(_ context.Context, studentID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Enrolled[studentID], nil
}
