package graph

import (
	"context"
	"sync"

	graphql "github.com/graph-gophers/graphql-go"

	"mcsh-server/directory"
	"mcsh-server/exam"
	"mcsh-server/models"
	"mcsh-server/utils"
)

type userResolver struct {
	r *Resolver
	u models.User
}

func (r *Resolver) user(u models.User) *userResolver { return &userResolver{r: r, u: u} }

func (u *userResolver) ID() graphql.ID           { return gqlID(u.u.ID) }
func (u *userResolver) UUID() string             { return u.u.UUID.String() }
func (u *userResolver) FirstName() string        { return u.u.FirstName }
func (u *userResolver) LastName() string         { return u.u.LastName }
func (u *userResolver) FullName() string         { return u.u.FullName() }
func (u *userResolver) Email() string            { return u.u.Email }
func (u *userResolver) Role() string             { return string(u.u.Role) }
func (u *userResolver) Status() string           { return string(u.u.Status) }
func (u *userResolver) ProfileImage() *string    { return u.u.ProfileImage }
func (u *userResolver) PhoneNumber() *string     { return u.u.PhoneNumber }
func (u *userResolver) LastLogin() *graphql.Time { return optTime(u.u.LastLogin) }
func (u *userResolver) CreatedAt() graphql.Time  { return gqlTime(u.u.CreatedAt) }
func (u *userResolver) UpdatedAt() graphql.Time  { return gqlTime(u.u.UpdatedAt) }

func (u *userResolver) Subjects(ctx context.Context) ([]*subjectResolver, error) {
	subjects, err := u.r.dir.UserSubjects(ctx, u.u)
	return mapAll(subjects, u.r.subject), err
}

func (u *userResolver) Grades(ctx context.Context) ([]*gradeResolver, error) {
	grades, err := u.r.dir.UserGrades(ctx, u.u)
	return mapAll(grades, u.r.grade), err
}

func (u *userResolver) TeacherSubjects(ctx context.Context) ([]*subjectResolver, error) {
	return u.Subjects(ctx)
}

func (u *userResolver) TeacherGrades(ctx context.Context) ([]*gradeResolver, error) {
	if u.u.Role != models.RoleTeacher {
		return []*gradeResolver{}, nil
	}
	return u.Grades(ctx)
}

func (u *userResolver) StudentGrades(ctx context.Context) ([]*gradeResolver, error) {
	if u.u.Role != models.RoleStudent {
		return []*gradeResolver{}, nil
	}
	return u.Grades(ctx)
}

func (u *userResolver) CreatedExams(ctx context.Context, args struct{ Page *pageInput }) (*connection[*examResolver], error) {
	return u.r.relatedExams(ctx, "createdExams", models.ExamFilter{CreatedByID: &u.u.ID}, args.Page)
}

func (u *userResolver) StudentExams(ctx context.Context, args struct{ Page *pageInput }) (*connection[*attemptResolver], error) {
	opts, err := listOptions("studentExams", nil, args.Page)
	if err != nil {
		return nil, err
	}
	p, err := u.r.exams.ListAttempts(ctx, caller(ctx), models.AttemptFilter{StudentID: &u.u.ID}, opts)
	return related(p, err, func(a models.ExamAttempt) int64 { return a.ID }, u.r.attempt)
}

func (u *userResolver) Notifications(ctx context.Context, args struct {
	UnreadOnly *bool
	Page       *pageInput
}) (*connection[*notificationResolver], error) {
	id := func(n models.Notification) int64 { return n.ID }
	c := caller(ctx)
	if c.ID != u.u.ID {
		return newConnection(models.Page[models.Notification]{}, id, notification), nil
	}
	opts, err := listOptions("notifications", nil, args.Page)
	if err != nil {
		return nil, err
	}
	p, err := u.r.dir.Notifications(ctx, c, utils.Deref(args.UnreadOnly), opts)
	return related(p, err, id, notification)
}

type gradeResolver struct {
	r *Resolver
	g models.Grade
}

func (r *Resolver) grade(g models.Grade) *gradeResolver { return &gradeResolver{r: r, g: g} }

func (g *gradeResolver) ID() graphql.ID          { return gqlID(g.g.ID) }
func (g *gradeResolver) UUID() string            { return g.g.UUID.String() }
func (g *gradeResolver) Name() string            { return g.g.Name }
func (g *gradeResolver) Description() *string    { return g.g.Description }
func (g *gradeResolver) AcademicYear() string    { return g.g.AcademicYear }
func (g *gradeResolver) IsActive() bool          { return g.g.IsActive }
func (g *gradeResolver) CreatedAt() graphql.Time { return gqlTime(g.g.CreatedAt) }
func (g *gradeResolver) UpdatedAt() graphql.Time { return gqlTime(g.g.UpdatedAt) }

func (g *gradeResolver) Subjects(ctx context.Context) ([]*subjectResolver, error) {
	subjects, err := g.r.dir.GradeSubjects(ctx, g.g.ID)
	return mapAll(subjects, g.r.subject), err
}

// Students and Teachers are empty for students; classmates are not listed.
func (g *gradeResolver) Students(ctx context.Context) ([]*userResolver, error) {
	if caller(ctx).Role == models.RoleStudent {
		return []*userResolver{}, nil
	}
	users, err := g.r.dir.StudentsInGrade(ctx, g.g.ID)
	return mapAll(users, g.r.user), err
}

func (g *gradeResolver) Teachers(ctx context.Context) ([]*userResolver, error) {
	if caller(ctx).Role == models.RoleStudent {
		return []*userResolver{}, nil
	}
	users, err := g.r.dir.TeachersInGrade(ctx, g.g.ID)
	return mapAll(users, g.r.user), err
}

func (g *gradeResolver) Exams(ctx context.Context, args struct{ Page *pageInput }) (*connection[*examResolver], error) {
	return g.r.relatedExams(ctx, "exams", models.ExamFilter{GradeID: &g.g.ID}, args.Page)
}

type subjectResolver struct {
	r *Resolver
	s models.Subject
}

func (r *Resolver) subject(s models.Subject) *subjectResolver { return &subjectResolver{r: r, s: s} }

func (s *subjectResolver) ID() graphql.ID          { return gqlID(s.s.ID) }
func (s *subjectResolver) UUID() string            { return s.s.UUID.String() }
func (s *subjectResolver) Name() string            { return s.s.Name }
func (s *subjectResolver) Code() string            { return s.s.Code }
func (s *subjectResolver) Description() *string    { return s.s.Description }
func (s *subjectResolver) IsActive() bool          { return s.s.IsActive }
func (s *subjectResolver) CreatedAt() graphql.Time { return gqlTime(s.s.CreatedAt) }
func (s *subjectResolver) UpdatedAt() graphql.Time { return gqlTime(s.s.UpdatedAt) }

func (s *subjectResolver) Grade(ctx context.Context) (*gradeResolver, error) {
	g, err := s.r.dir.SubjectGrade(ctx, s.s)
	if err != nil {
		return nil, hidden(err)
	}
	return s.r.grade(g), nil
}

func (s *subjectResolver) Teachers(ctx context.Context) ([]*userResolver, error) {
	users, err := s.r.dir.SubjectTeachers(ctx, s.s.ID)
	return mapAll(users, s.r.user), err
}

func (s *subjectResolver) Exams(ctx context.Context, args struct{ Page *pageInput }) (*connection[*examResolver], error) {
	return s.r.relatedExams(ctx, "exams", models.ExamFilter{SubjectID: &s.s.ID}, args.Page)
}

type examResolver struct {
	r *Resolver
	e models.Exam

	once     sync.Once
	stats    models.ExamStats
	statsErr error
}

func (r *Resolver) exam(e models.Exam) *examResolver { return &examResolver{r: r, e: e} }

func (e *examResolver) ID() graphql.ID           { return gqlID(e.e.ID) }
func (e *examResolver) UUID() string             { return e.e.UUID.String() }
func (e *examResolver) Title() string            { return e.e.Title }
func (e *examResolver) Description() *string     { return e.e.Description }
func (e *examResolver) Instructions() *string    { return e.e.Instructions }
func (e *examResolver) Duration() int32          { return int32(e.e.Duration) }
func (e *examResolver) Passmark() *float64       { return e.e.Passmark }
func (e *examResolver) ShuffleQuestions() bool   { return e.e.ShuffleQuestions }
func (e *examResolver) AllowReview() bool        { return e.e.AllowReview }
func (e *examResolver) ShowResults() bool        { return e.e.ShowResults }
func (e *examResolver) StartDate() *graphql.Time { return optTime(e.e.StartDate) }
func (e *examResolver) EndDate() *graphql.Time   { return optTime(e.e.EndDate) }
func (e *examResolver) Status() string           { return string(e.e.Status) }
func (e *examResolver) CreatedAt() graphql.Time  { return gqlTime(e.e.CreatedAt) }
func (e *examResolver) UpdatedAt() graphql.Time  { return gqlTime(e.e.UpdatedAt) }

func (e *examResolver) Subject(ctx context.Context) (*subjectResolver, error) {
	s, err := e.r.dir.GetSubject(ctx, caller(ctx), e.e.SubjectID)
	if err != nil {
		return nil, hidden(err)
	}
	return e.r.subject(s), nil
}

func (e *examResolver) Grade(ctx context.Context) (*gradeResolver, error) {
	g, err := e.r.dir.GetGrade(ctx, caller(ctx), e.e.GradeID)
	if err != nil {
		return nil, hidden(err)
	}
	return e.r.grade(g), nil
}

func (e *examResolver) CreatedBy(ctx context.Context) (*userResolver, error) {
	u, err := e.r.dir.GetUser(ctx, caller(ctx), e.e.CreatedByID)
	if err != nil {
		return nil, hidden(err)
	}
	return e.r.user(u), nil
}

func (e *examResolver) loadStats(ctx context.Context) (models.ExamStats, error) {
	e.once.Do(func() { e.stats, e.statsErr = e.r.exams.Stats(ctx, e.e.ID) })
	return e.stats, e.statsErr
}

func (e *examResolver) QuestionCount(ctx context.Context) (int32, error) {
	st, err := e.loadStats(ctx)
	return int32(st.QuestionCount), err
}

func (e *examResolver) TotalPoints(ctx context.Context) (float64, error) {
	st, err := e.loadStats(ctx)
	return st.TotalPoints, err
}

func (e *examResolver) AverageScore(ctx context.Context) (*float64, error) {
	st, err := e.loadStats(ctx)
	return st.AverageScore, err
}

func (e *examResolver) PassRate(ctx context.Context) (*float64, error) {
	st, err := e.loadStats(ctx)
	return st.PassRate, err
}

type questionResolver struct {
	q models.Question
}

func question(q models.Question) *questionResolver { return &questionResolver{q: q} }

func (q *questionResolver) ID() graphql.ID           { return gqlID(q.q.ID) }
func (q *questionResolver) UUID() string             { return q.q.UUID.String() }
func (q *questionResolver) ExamID() graphql.ID       { return gqlID(q.q.ExamID) }
func (q *questionResolver) QuestionNumber() int32    { return int32(q.q.QuestionNumber) }
func (q *questionResolver) Text() string             { return q.q.Text }
func (q *questionResolver) Type() string             { return string(q.q.Type) }
func (q *questionResolver) Options() []string        { return nonNil(q.q.Options) }
func (q *questionResolver) CorrectAnswer() *string   { return q.q.CorrectAnswer }
func (q *questionResolver) Points() float64          { return q.q.Points }
func (q *questionResolver) DifficultyLevel() *string { return enumOut(q.q.DifficultyLevel) }
func (q *questionResolver) Tags() []string           { return nonNil(q.q.Tags) }
func (q *questionResolver) Feedback() *string        { return q.q.Feedback }
func (q *questionResolver) Image() *string           { return q.q.Image }
func (q *questionResolver) CreatedAt() graphql.Time  { return gqlTime(q.q.CreatedAt) }
func (q *questionResolver) UpdatedAt() graphql.Time  { return gqlTime(q.q.UpdatedAt) }

type questionList struct {
	items []*questionResolver
}

func (l *questionList) Items() []*questionResolver { return l.items }

type attemptResolver struct {
	r *Resolver
	a models.ExamAttempt

	once        sync.Once
	progress    exam.Progress
	progressErr error
}

func (r *Resolver) attempt(a models.ExamAttempt) *attemptResolver { return &attemptResolver{r: r, a: a} }

func (a *attemptResolver) ID() graphql.ID          { return gqlID(a.a.ID) }
func (a *attemptResolver) UUID() string            { return a.a.UUID.String() }
func (a *attemptResolver) Status() string          { return string(a.a.Status) }
func (a *attemptResolver) StartTime() graphql.Time { return gqlTime(a.a.StartTime) }
func (a *attemptResolver) EndTime() *graphql.Time  { return optTime(a.a.EndTime) }
func (a *attemptResolver) Score() *float64         { return a.a.Score }
func (a *attemptResolver) IsPassed() *bool         { return a.a.IsPassed }
func (a *attemptResolver) TimeSpent() *int32       { return optInt32(a.a.TimeSpent) }

func (a *attemptResolver) Exam(ctx context.Context) (*examResolver, error) {
	e, err := a.r.exams.GetExam(ctx, caller(ctx), a.a.ExamID)
	if err != nil {
		return nil, hidden(err)
	}
	return a.r.exam(e), nil
}

func (a *attemptResolver) Student(ctx context.Context) (*userResolver, error) {
	u, err := a.r.dir.GetUser(ctx, caller(ctx), a.a.StudentID)
	if err != nil {
		return nil, hidden(err)
	}
	return a.r.user(u), nil
}

func (a *attemptResolver) Answers(ctx context.Context) ([]*answerResolver, error) {
	answers, err := a.r.exams.Answers(ctx, caller(ctx), a.a)
	return mapAll(answers, answer), err
}

func (a *attemptResolver) loadProgress(ctx context.Context) (exam.Progress, error) {
	a.once.Do(func() { a.progress, a.progressErr = a.r.exams.Progress(ctx, a.a) })
	return a.progress, a.progressErr
}

func (a *attemptResolver) AnsweredCount(ctx context.Context) (int32, error) {
	p, err := a.loadProgress(ctx)
	return int32(p.AnsweredCount), err
}

func (a *attemptResolver) MarkedCount(ctx context.Context) (int32, error) {
	p, err := a.loadProgress(ctx)
	return int32(p.MarkedCount), err
}

func (a *attemptResolver) QuestionCount(ctx context.Context) (int32, error) {
	p, err := a.loadProgress(ctx)
	return int32(p.QuestionCount), err
}

func (a *attemptResolver) Progress(ctx context.Context) (float64, error) {
	p, err := a.loadProgress(ctx)
	return p.Progress, err
}

func (a *attemptResolver) RemainingTime(ctx context.Context) (int32, error) {
	p, err := a.loadProgress(ctx)
	return int32(p.RemainingTime), err
}

type answerResolver struct {
	a models.Answer
}

func answer(a models.Answer) *answerResolver { return &answerResolver{a: a} }

func (a *answerResolver) ID() graphql.ID           { return gqlID(a.a.ID) }
func (a *answerResolver) QuestionID() graphql.ID   { return gqlID(a.a.QuestionID) }
func (a *answerResolver) SelectedAnswer() *string  { return a.a.SelectedAnswer }
func (a *answerResolver) IsCorrect() *bool         { return a.a.IsCorrect }
func (a *answerResolver) IsMarked() bool           { return a.a.IsMarked }
func (a *answerResolver) TimeTaken() *int32        { return optInt32(a.a.TimeTaken) }
func (a *answerResolver) AnsweredAt() graphql.Time { return gqlTime(a.a.AnsweredAt) }

type notificationResolver struct {
	n models.Notification
}

func notification(n models.Notification) *notificationResolver { return &notificationResolver{n: n} }

func (n *notificationResolver) ID() graphql.ID          { return gqlID(n.n.ID) }
func (n *notificationResolver) Title() string           { return n.n.Title }
func (n *notificationResolver) Message() string         { return n.n.Message }
func (n *notificationResolver) Type() string            { return n.n.Type }
func (n *notificationResolver) IsRead() bool            { return n.n.IsRead }
func (n *notificationResolver) CreatedAt() graphql.Time { return gqlTime(n.n.CreatedAt) }

type authPayloadResolver struct {
	r *Resolver
	p directory.AuthPayload
}

func (a *authPayloadResolver) Token() string           { return a.p.Token }
func (a *authPayloadResolver) ExpiresAt() graphql.Time { return gqlTime(a.p.ExpiresAt) }
func (a *authPayloadResolver) User() *userResolver     { return a.r.user(a.p.User) }

type pageInfo struct {
	hasNext, hasPrev bool
	start, end       *string
}

func (p *pageInfo) HasNextPage() bool     { return p.hasNext }
func (p *pageInfo) HasPreviousPage() bool { return p.hasPrev }
func (p *pageInfo) StartCursor() *string  { return p.start }
func (p *pageInfo) EndCursor() *string    { return p.end }

type edge[R any] struct {
	cursor string
	node   R
}

func (e *edge[R]) Cursor() string { return e.cursor }
func (e *edge[R]) Node() R        { return e.node }

type connection[R any] struct {
	edges []*edge[R]
	info  *pageInfo
	total int32
}

func (c *connection[R]) Edges() []*edge[R]   { return c.edges }
func (c *connection[R]) PageInfo() *pageInfo { return c.info }
func (c *connection[R]) TotalCount() int32   { return c.total }

func newConnection[T, R any](p models.Page[T], id func(T) int64, wrap func(T) R) *connection[R] {
	c := &connection[R]{
		edges: make([]*edge[R], 0, len(p.Items)),
		info:  &pageInfo{hasNext: p.HasNextPage, hasPrev: p.HasPreviousPage},
		total: int32(p.TotalCount),
	}
	for _, item := range p.Items {
		c.edges = append(c.edges, &edge[R]{cursor: utils.EncodeCursor(id(item)), node: wrap(item)})
	}
	if n := len(c.edges); n > 0 {
		c.info.start = &c.edges[0].cursor
		c.info.end = &c.edges[n-1].cursor
	}
	return c
}

// relatedExams lists the exams behind a relation field, limited to what the
// caller may see.
func (r *Resolver) relatedExams(ctx context.Context, field string, f models.ExamFilter, page *pageInput) (*connection[*examResolver], error) {
	opts, err := listOptions(field, nil, page)
	if err != nil {
		return nil, err
	}
	p, err := r.exams.ListExams(ctx, caller(ctx), f, opts)
	return related(p, err, func(e models.Exam) int64 { return e.ID }, r.exam)
}

// related turns a page into a connection. A page the caller may not read
// is empty.
func related[T, R any](p models.Page[T], err error, id func(T) int64, wrap func(T) R) (*connection[R], error) {
	if err != nil {
		if err = hidden(err); err != nil {
			return nil, err
		}
		p = models.Page[T]{}
	}
	return newConnection(p, id, wrap), nil
}

func mapAll[T, R any](items []T, wrap func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, wrap(item))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
