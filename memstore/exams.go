package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"mcsh-server/db"
	"mcsh-server/models"
)

func (m *Store) GetExam(_ context.Context, id int64) (models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Exams[id]
	if !ok {
		return e, missing("exam", id)
	}
	return e, nil
}

func visibleExam(sc models.ExamScope, e models.Exam) bool {
	switch {
	case !sc.Restricted:
		return true
	case sc.PublishedOnly:
		return e.Status == models.ExamPublished && slices.Contains(sc.GradeIDs, e.GradeID)
	}
	return e.CreatedByID == sc.CreatorID || slices.Contains(sc.SubjectIDs, e.SubjectID) || slices.Contains(sc.GradeIDs, e.GradeID)
}

func (m *Store) ListExams(_ context.Context, f models.ExamFilter, opts models.ListOptions) (models.Page[models.Exam], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Exam
	for _, e := range m.Exams {
		switch {
		case !visibleExam(f.Scope, e),
			f.Status != nil && e.Status != *f.Status,
			f.SubjectID != nil && e.SubjectID != *f.SubjectID,
			f.GradeID != nil && e.GradeID != *f.GradeID,
			f.CreatedByID != nil && e.CreatedByID != *f.CreatedByID,
			!contains(e.Title, f.Search):
			continue
		}
		out = append(out, e)
	}
	return page(out, func(e models.Exam) int64 { return e.ID }, opts), nil
}

func (m *Store) CreateExam(_ context.Context, e models.Exam) (models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createExam(e), nil
}

func (m *Store) createExam(e models.Exam) models.Exam {
	e.ID, e.UUID = m.id(), uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	m.Exams[e.ID] = e
	return e
}

func (m *Store) UpdateExam(_ context.Context, e models.Exam) (models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Exams[e.ID]; !ok {
		return e, missing("exam", e.ID)
	}
	e.UpdatedAt = time.Now()
	m.Exams[e.ID] = e
	return e, nil
}

func (m *Store) DeleteExam(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Exams[id]; !ok {
		return missing("exam", id)
	}
	delete(m.Exams, id)
	for qid, q := range m.Questions {
		if q.ExamID == id {
			delete(m.Questions, qid)
		}
	}
	return nil
}

func (m *Store) ExamStats(_ context.Context, id int64) (models.ExamStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st models.ExamStats
	for _, q := range m.Questions {
		if q.ExamID == id {
			st.QuestionCount++
			st.TotalPoints += q.Points
		}
	}
	var sum float64
	var finished, passed, judged int
	for _, a := range m.Attempts {
		if a.ExamID != id || !a.Status.Finished() || a.Score == nil {
			continue
		}
		finished++
		sum += *a.Score
		if a.IsPassed != nil {
			judged++
			if *a.IsPassed {
				passed++
			}
		}
	}
	if finished > 0 {
		avg := sum / float64(finished)
		st.AverageScore = &avg
	}
	if judged > 0 {
		rate := float64(passed) / float64(judged) * 100
		st.PassRate = &rate
	}
	return st, nil
}

func (m *Store) CountAttempts(_ context.Context, examID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.Attempts {
		if a.ExamID == examID {
			n++
		}
	}
	return n, nil
}

func (m *Store) GetQuestion(_ context.Context, id int64) (models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.Questions[id]
	if !ok {
		return q, missing("question", id)
	}
	return q, nil
}

func (m *Store) ListQuestions(_ context.Context, examID int64) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Question
	for _, q := range m.Questions {
		if q.ExamID == examID {
			out = append(out, q)
		}
	}
	slices.SortFunc(out, func(a, b models.Question) int { return cmp.Compare(a.QuestionNumber, b.QuestionNumber) })
	return out, nil
}

func (m *Store) numberTaken(q models.Question) bool {
	for _, o := range m.Questions {
		if o.ID != q.ID && o.ExamID == q.ExamID && o.QuestionNumber == q.QuestionNumber {
			return true
		}
	}
	return false
}

func (m *Store) createQuestion(q models.Question) (models.Question, error) {
	if m.numberTaken(q) {
		return q, fmt.Errorf("create question: %w", db.ErrDuplicate)
	}
	q.ID, q.UUID = m.id(), uuid.New()
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	m.Questions[q.ID] = q
	return q, nil
}

func (m *Store) CreateQuestion(_ context.Context, q models.Question) (models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createQuestion(q)
}

func (m *Store) UpdateQuestion(_ context.Context, q models.Question) (models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.numberTaken(q) {
		return q, fmt.Errorf("update question: %w", db.ErrDuplicate)
	}
	q.UpdatedAt = time.Now()
	m.Questions[q.ID] = q
	return q, nil
}

func (m *Store) DeleteQuestion(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Questions[id]; !ok {
		return missing("question", id)
	}
	delete(m.Questions, id)
	return nil
}

// CreateExamWithQuestions stores the exam and its questions, or nothing.
func (m *Store) CreateExamWithQuestions(_ context.Context, e models.Exam, qs []models.Question) (models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int]bool{}
	for _, q := range qs {
		if seen[q.QuestionNumber] {
			return models.Exam{}, fmt.Errorf("question %d: %w", q.QuestionNumber, db.ErrDuplicate)
		}
		seen[q.QuestionNumber] = true
	}
	created := m.createExam(e)
	for _, q := range qs {
		q.ExamID = created.ID
		if _, err := m.createQuestion(q); err != nil {
			return models.Exam{}, err
		}
	}
	return created, nil
}

// Attempts

func (m *Store) GetAttempt(_ context.Context, id int64) (models.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[id]
	if !ok {
		return a, missing("attempt", id)
	}
	return a, nil
}

func (m *Store) FindAttempt(_ context.Context, examID, studentID int64) (models.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			return a, nil
		}
	}
	return models.ExamAttempt{}, missing("attempt for exam", examID)
}

func (m *Store) visibleAttempt(sc models.AttemptScope, a models.ExamAttempt) bool {
	switch {
	case !sc.Restricted:
		return true
	case sc.StudentID != 0:
		return a.StudentID == sc.StudentID
	}
	e := m.Exams[a.ExamID]
	return e.CreatedByID == sc.CreatorID || slices.Contains(sc.SubjectIDs, e.SubjectID)
}

func (m *Store) ListAttempts(_ context.Context, f models.AttemptFilter, opts models.ListOptions) (models.Page[models.ExamAttempt], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExamAttempt
	for _, a := range m.Attempts {
		switch {
		case !m.visibleAttempt(f.Scope, a),
			f.ExamID != nil && a.ExamID != *f.ExamID,
			f.StudentID != nil && a.StudentID != *f.StudentID,
			f.Status != nil && a.Status != *f.Status:
			continue
		}
		out = append(out, a)
	}
	return page(out, func(a models.ExamAttempt) int64 { return a.ID }, opts), nil
}

func (m *Store) CreateAttempt(_ context.Context, a models.ExamAttempt) (models.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.Attempts {
		if o.ExamID == a.ExamID && o.StudentID == a.StudentID {
			return a, fmt.Errorf("create attempt: %w", db.ErrDuplicate)
		}
	}
	a.ID, a.UUID = m.id(), uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.Attempts[a.ID] = a
	return a, nil
}

func (m *Store) ListAnswers(_ context.Context, attemptID int64) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Answer
	for k, a := range m.Answers {
		if k[0] == attemptID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b models.Answer) int { return cmp.Compare(a.QuestionID, b.QuestionID) })
	return out, nil
}

func (m *Store) UpsertAnswers(_ context.Context, attemptID int64, ups []models.AnswerUpsert) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Answer, 0, len(ups))
	for _, u := range ups {
		key := [2]int64{attemptID, u.QuestionID}
		a, ok := m.Answers[key]
		if !ok {
			a = models.Answer{ID: m.id(), AttemptID: attemptID, QuestionID: u.QuestionID}
		}
		switch {
		case u.Clear:
			a.SelectedAnswer, a.IsCorrect = nil, nil
		case u.Selected != nil:
			a.SelectedAnswer, a.IsCorrect = u.Selected, u.IsCorrect
		}
		if u.IsMarked != nil {
			a.IsMarked = *u.IsMarked
		}
		if u.TimeTaken != nil {
			a.TimeTaken = u.TimeTaken
		}
		a.AnsweredAt = time.Now()
		m.Answers[key] = a
		out = append(out, a)
	}
	return out, nil
}

// FinalizeAttempt only applies to an attempt still in progress.
func (m *Store) FinalizeAttempt(_ context.Context, f models.Finalization) (models.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[f.AttemptID]
	if !ok || a.Status != models.AttemptInProgress {
		return a, fmt.Errorf("finalize attempt %d: %w", f.AttemptID, db.ErrStale)
	}
	end, score, spent := f.EndTime, f.Score, f.TimeSpent
	a.Status = models.AttemptCompleted
	a.EndTime, a.Score, a.TimeSpent, a.IsPassed = &end, &score, &spent, f.IsPassed
	a.UpdatedAt = time.Now()
	m.Attempts[a.ID] = a
	return a, nil
}

// AnswerCount reports how many answer rows an attempt has.
func (m *Store) AnswerCount(attemptID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.Answers {
		if k[0] == attemptID {
			n++
		}
	}
	return n
}

// Notifications

func (m *Store) CreateNotification(_ context.Context, n models.Notification) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNotifications {
		return n, errors.New("notifications table unavailable")
	}
	n.ID = m.id()
	n.CreatedAt = time.Now()
	m.Notifications[n.ID] = n
	return n, nil
}

// Sent returns every notification in creation order.
func (m *Store) Sent() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, 0, len(m.Notifications))
	for _, n := range m.Notifications {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b models.Notification) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *Store) GetNotification(_ context.Context, id int64) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.Notifications[id]
	if !ok {
		return n, missing("notification", id)
	}
	return n, nil
}

func (m *Store) ListNotifications(_ context.Context, recipientID int64, unreadOnly bool, opts models.ListOptions) (models.Page[models.Notification], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.Notifications {
		if n.RecipientID == recipientID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	opts.Descending = true
	return page(out, func(n models.Notification) int64 { return n.ID }, opts), nil
}

func (m *Store) MarkNotificationRead(_ context.Context, id int64) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.Notifications[id]
	if !ok {
		return n, missing("notification", id)
	}
	n.IsRead = true
	m.Notifications[id] = n
	return n, nil
}
