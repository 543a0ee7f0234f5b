package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"mcsh-server/models"
	"mcsh-server/utils"
)

type idArgs struct {
	ID graphql.ID
}

type userFilterInput struct {
	Role   *string
	Status *string
	Search *string
}

type gradeFilterInput struct {
	IsActive     *bool
	AcademicYear *string
	Search       *string
}

type subjectFilterInput struct {
	IsActive *bool
	GradeID  *graphql.ID
	Search   *string
}

type examFilterInput struct {
	SubjectID   *graphql.ID
	GradeID     *graphql.ID
	Status      *string
	CreatedByID *graphql.ID
	Search      *string
}

type studentExamFilterInput struct {
	ExamID    *graphql.ID
	StudentID *graphql.ID
	Status    *string
}

func (r *Resolver) Me(ctx context.Context) *userResult {
	u, err := r.dir.Me(ctx, caller(ctx))
	return r.userResult(ctx, "me", u, err)
}

func (r *Resolver) User(ctx context.Context, args idArgs) *userResult {
	id, err := parseID(args.ID, "user", "id")
	if err != nil {
		return r.userResult(ctx, "user", models.User{}, err)
	}
	u, err := r.dir.GetUser(ctx, caller(ctx), id)
	return r.userResult(ctx, "user", u, err)
}

func (r *Resolver) Users(ctx context.Context, args struct {
	Filter *userFilterInput
	Sort   *sortInput
	Page   *pageInput
}) *userConnectionResult {
	opts, err := listOptions("users", args.Sort, args.Page)
	if err != nil {
		return &userConnectionResult{outcome: r.fail(ctx, "users", err)}
	}
	var f models.UserFilter
	if args.Filter != nil {
		f.Role = enumPtr[models.Role](args.Filter.Role)
		f.Status = enumPtr[models.UserStatus](args.Filter.Status)
		f.Search = utils.Deref(args.Filter.Search)
	}
	p, err := r.dir.ListUsers(ctx, caller(ctx), f, opts)
	if err != nil {
		return &userConnectionResult{outcome: r.fail(ctx, "users", err)}
	}
	return &userConnectionResult{conn: newConnection(p, func(u models.User) int64 { return u.ID }, r.user)}
}

func (r *Resolver) Grade(ctx context.Context, args idArgs) *gradeResult {
	id, err := parseID(args.ID, "grade", "id")
	if err != nil {
		return r.gradeResult(ctx, "grade", models.Grade{}, err)
	}
	g, err := r.dir.GetGrade(ctx, caller(ctx), id)
	return r.gradeResult(ctx, "grade", g, err)
}

func (r *Resolver) Grades(ctx context.Context, args struct {
	Filter *gradeFilterInput
	Sort   *sortInput
	Page   *pageInput
}) *gradeConnectionResult {
	opts, err := listOptions("grades", args.Sort, args.Page)
	if err != nil {
		return &gradeConnectionResult{outcome: r.fail(ctx, "grades", err)}
	}
	var f models.GradeFilter
	if args.Filter != nil {
		f.IsActive = args.Filter.IsActive
		f.AcademicYear = args.Filter.AcademicYear
		f.Search = utils.Deref(args.Filter.Search)
	}
	p, err := r.dir.ListGrades(ctx, caller(ctx), f, opts)
	if err != nil {
		return &gradeConnectionResult{outcome: r.fail(ctx, "grades", err)}
	}
	return &gradeConnectionResult{conn: newConnection(p, func(g models.Grade) int64 { return g.ID }, r.grade)}
}

func (r *Resolver) Subject(ctx context.Context, args idArgs) *subjectResult {
	id, err := parseID(args.ID, "subject", "id")
	if err != nil {
		return r.subjectResult(ctx, "subject", models.Subject{}, err)
	}
	s, err := r.dir.GetSubject(ctx, caller(ctx), id)
	return r.subjectResult(ctx, "subject", s, err)
}

func (r *Resolver) SubjectByCode(ctx context.Context, args struct{ Code string }) *subjectResult {
	s, err := r.dir.GetSubjectByCode(ctx, caller(ctx), args.Code)
	return r.subjectResult(ctx, "subjectByCode", s, err)
}

func (r *Resolver) Subjects(ctx context.Context, args struct {
	Filter *subjectFilterInput
	Sort   *sortInput
	Page   *pageInput
}) *subjectConnectionResult {
	opts, err := listOptions("subjects", args.Sort, args.Page)
	if err != nil {
		return &subjectConnectionResult{outcome: r.fail(ctx, "subjects", err)}
	}
	var f models.SubjectFilter
	if args.Filter != nil {
		f.IsActive = args.Filter.IsActive
		f.Search = utils.Deref(args.Filter.Search)
		if f.GradeID, err = parseOptID(args.Filter.GradeID, "subjects", "filter", "gradeId"); err != nil {
			return &subjectConnectionResult{outcome: r.fail(ctx, "subjects", err)}
		}
	}
	p, err := r.dir.ListSubjects(ctx, caller(ctx), f, opts)
	if err != nil {
		return &subjectConnectionResult{outcome: r.fail(ctx, "subjects", err)}
	}
	return &subjectConnectionResult{conn: newConnection(p, func(s models.Subject) int64 { return s.ID }, r.subject)}
}

func (r *Resolver) Exam(ctx context.Context, args idArgs) *examResult {
	id, err := parseID(args.ID, "exam", "id")
	if err != nil {
		return r.examResult(ctx, "exam", models.Exam{}, err)
	}
	e, err := r.exams.GetExam(ctx, caller(ctx), id)
	return r.examResult(ctx, "exam", e, err)
}

func (r *Resolver) Exams(ctx context.Context, args struct {
	Filter *examFilterInput
	Sort   *sortInput
	Page   *pageInput
}) *examConnectionResult {
	f, opts, err := examListArgs(args.Filter, args.Sort, args.Page)
	if err != nil {
		return &examConnectionResult{outcome: r.fail(ctx, "exams", err)}
	}
	p, err := r.exams.ListExams(ctx, caller(ctx), f, opts)
	if err != nil {
		return &examConnectionResult{outcome: r.fail(ctx, "exams", err)}
	}
	return &examConnectionResult{conn: newConnection(p, func(e models.Exam) int64 { return e.ID }, r.exam)}
}

func examListArgs(in *examFilterInput, sort *sortInput, page *pageInput) (models.ExamFilter, models.ListOptions, error) {
	var f models.ExamFilter
	opts, err := listOptions("exams", sort, page)
	if err != nil || in == nil {
		return f, opts, err
	}
	f.Status = enumPtr[models.ExamStatus](in.Status)
	f.Search = utils.Deref(in.Search)
	if f.SubjectID, err = parseOptID(in.SubjectID, "exams", "filter", "subjectId"); err != nil {
		return f, opts, err
	}
	if f.GradeID, err = parseOptID(in.GradeID, "exams", "filter", "gradeId"); err != nil {
		return f, opts, err
	}
	f.CreatedByID, err = parseOptID(in.CreatedByID, "exams", "filter", "createdById")
	return f, opts, err
}

func (r *Resolver) Question(ctx context.Context, args idArgs) *questionResult {
	id, err := parseID(args.ID, "question", "id")
	if err != nil {
		return r.questionResult(ctx, "question", models.Question{}, err)
	}
	q, err := r.exams.GetQuestion(ctx, caller(ctx), id)
	return r.questionResult(ctx, "question", q, err)
}

func (r *Resolver) ExamQuestions(ctx context.Context, args struct{ ExamID graphql.ID }) *questionListResult {
	id, err := parseID(args.ExamID, "examQuestions", "examId")
	if err != nil {
		return &questionListResult{outcome: r.fail(ctx, "examQuestions", err)}
	}
	qs, err := r.exams.ExamQuestions(ctx, caller(ctx), id)
	if err != nil {
		return &questionListResult{outcome: r.fail(ctx, "examQuestions", err)}
	}
	return &questionListResult{list: &questionList{items: mapAll(qs, question)}}
}

func (r *Resolver) StudentExam(ctx context.Context, args idArgs) *studentExamResult {
	id, err := parseID(args.ID, "studentExam", "id")
	if err != nil {
		return r.studentExamResult(ctx, "studentExam", models.ExamAttempt{}, err)
	}
	a, err := r.exams.GetAttempt(ctx, caller(ctx), id)
	return r.studentExamResult(ctx, "studentExam", a, err)
}

func (r *Resolver) StudentExams(ctx context.Context, args struct {
	Filter *studentExamFilterInput
	Sort   *sortInput
	Page   *pageInput
}) *studentExamConnectionResult {
	opts, err := listOptions("studentExams", args.Sort, args.Page)
	if err != nil {
		return &studentExamConnectionResult{outcome: r.fail(ctx, "studentExams", err)}
	}
	var f models.AttemptFilter
	if in := args.Filter; in != nil {
		f.Status = enumPtr[models.AttemptStatus](in.Status)
		f.ExamID, err = parseOptID(in.ExamID, "studentExams", "filter", "examId")
		if err == nil {
			f.StudentID, err = parseOptID(in.StudentID, "studentExams", "filter", "studentId")
		}
		if err != nil {
			return &studentExamConnectionResult{outcome: r.fail(ctx, "studentExams", err)}
		}
	}
	p, err := r.exams.ListAttempts(ctx, caller(ctx), f, opts)
	if err != nil {
		return &studentExamConnectionResult{outcome: r.fail(ctx, "studentExams", err)}
	}
	return &studentExamConnectionResult{conn: newConnection(p, func(a models.ExamAttempt) int64 { return a.ID }, r.attempt)}
}

func (r *Resolver) Notifications(ctx context.Context, args struct {
	UnreadOnly *bool
	Page       *pageInput
}) *notificationConnectionResult {
	opts, err := listOptions("notifications", nil, args.Page)
	if err != nil {
		return &notificationConnectionResult{outcome: r.fail(ctx, "notifications", err)}
	}
	p, err := r.dir.Notifications(ctx, caller(ctx), utils.Deref(args.UnreadOnly), opts)
	if err != nil {
		return &notificationConnectionResult{outcome: r.fail(ctx, "notifications", err)}
	}
	return &notificationConnectionResult{conn: newConnection(p, func(n models.Notification) int64 { return n.ID }, notification)}
}
