package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"mcsh-server/db"
	"mcsh-server/models"
)

func (m *Store) LogAdminEvent(_ context.Context, actor, action, target, notes string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, Event{Actor: actor, Action: action, Target: target, Notes: notes, At: time.Now()})
}

func (m *Store) LogError(_ context.Context, e db.ErrorLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorLogs = append(m.ErrorLogs, models.ErrorLog{
		ID:           m.id(),
		Timestamp:    time.Now(),
		Source:       e.Source,
		FilePath:     e.FilePath,
		LineNumber:   e.LineNumber,
		FieldName:    e.FieldName,
		ErrorMessage: e.Message,
		SuggestedFix: e.SuggestedFix,
	})
}

func (m *Store) DashboardStats(context.Context) (models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.DashboardStats{Users: len(m.Users), Exams: len(m.Exams), AttemptsTaken: len(m.Attempts)}
	for _, e := range m.Exams {
		if e.Status == models.ExamPublished {
			s.PublishedExams++
		}
	}
	for _, a := range m.Attempts {
		if a.Status.Finished() {
			s.AttemptsFinished++
		}
	}
	for _, l := range m.ErrorLogs {
		if l.Source == "ingestion" {
			s.IngestionErrors++
		}
	}
	return s, nil
}

func (m *Store) RecentAdminEvents(_ context.Context, limit int) ([]models.AdminEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AdminEvent
	for i := len(m.Events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.Events[i]
		out = append(out, models.AdminEvent{ID: int64(i + 1), Timestamp: e.At, Action: e.Action, Actor: e.Actor, Target: e.Target, Notes: e.Notes})
	}
	return out, nil
}

func (m *Store) RecentErrorLogs(_ context.Context, source string, limit int) ([]models.ErrorLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ErrorLog
	for i := len(m.ErrorLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if l := m.ErrorLogs[i]; source == "" || l.Source == source {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Store) QuestionStats(_ context.Context, search string, examID *int64) ([]models.QuestionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QuestionStats
	for _, q := range m.Questions {
		if examID != nil && q.ExamID != *examID || !contains(q.Text, search) {
			continue
		}
		st := models.QuestionStats{
			QuestionID:     q.ID,
			ExamTitle:      m.Exams[q.ExamID].Title,
			QuestionNumber: q.QuestionNumber,
			Text:           q.Text,
			Type:           q.Type,
		}
		for k, a := range m.Answers {
			if k[1] != q.ID || a.SelectedAnswer == nil {
				continue
			}
			st.TimesAnswered++
			if a.IsCorrect != nil && *a.IsCorrect {
				st.CorrectCount++
			}
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b models.QuestionStats) int {
		return cmp.Or(cmp.Compare(a.ExamTitle, b.ExamTitle), cmp.Compare(a.QuestionNumber, b.QuestionNumber))
	})
	return out, nil
}
