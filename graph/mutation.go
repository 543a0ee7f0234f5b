package graph

import (
	"context"
	"fmt"

	graphql "github.com/graph-gophers/graphql-go"

	"mcsh-server/directory"
	"mcsh-server/exam"
	"mcsh-server/models"
)

type signupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

type createUserInput struct {
	FirstName    string
	LastName     string
	Email        string
	Password     string
	Role         string
	Status       *string
	ProfileImage *string
	PhoneNumber  *string
}

type updateUserInput struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Password     *string
	Role         *string
	Status       *string
	ProfileImage *string
	PhoneNumber  *string
}

type gradeInput struct {
	Name         *string
	Description  *string
	AcademicYear *string
	IsActive     *bool
}

type subjectInput struct {
	Name        *string
	Code        *string
	Description *string
	IsActive    *bool
	GradeID     *graphql.ID
}

type createExamInput struct {
	Title            string
	Description      *string
	Instructions     *string
	SubjectID        graphql.ID
	GradeID          graphql.ID
	Duration         int32
	Passmark         *float64
	ShuffleQuestions *bool
	AllowReview      *bool
	ShowResults      *bool
	StartDate        *graphql.Time
	EndDate          *graphql.Time
}

type updateExamInput struct {
	Title            *string
	Description      *string
	Instructions     *string
	SubjectID        *graphql.ID
	GradeID          *graphql.ID
	Duration         *int32
	Passmark         *float64
	ShuffleQuestions *bool
	AllowReview      *bool
	ShowResults      *bool
	StartDate        *graphql.Time
	EndDate          *graphql.Time
	Status           *string
}

type questionInput struct {
	QuestionNumber  *int32
	Text            *string
	Type            *string
	Options         *[]string
	CorrectAnswer   *string
	Points          *float64
	DifficultyLevel *string
	Tags            *[]string
	Feedback        *string
	Image           *string
}

type submitAnswerInput struct {
	StudentExamID  graphql.ID
	QuestionID     graphql.ID
	SelectedAnswer *string
	IsMarked       *bool
	TimeTaken      *int32
}

type answerInput struct {
	QuestionID     graphql.ID
	SelectedAnswer *string
	IsMarked       *bool
	TimeTaken      *int32
}

type submitExamInput struct {
	StudentExamID graphql.ID
	Answers       *[]answerInput
}

func (r *Resolver) Login(ctx context.Context, args struct{ Email, Password string }) *authResult {
	p, err := r.dir.Login(ctx, args.Email, args.Password)
	return r.authResult(ctx, "login", p, err)
}

func (r *Resolver) Signup(ctx context.Context, args struct{ Input signupInput }) *authResult {
	in := args.Input
	p, err := r.dir.Signup(ctx, directory.SignupInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
	})
	return r.authResult(ctx, "signup", p, err)
}

func (r *Resolver) CreateUser(ctx context.Context, args struct{ Input createUserInput }) *userResult {
	in := args.Input
	u, err := r.dir.CreateUser(ctx, caller(ctx), directory.CreateUserInput{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Password:     in.Password,
		Role:         models.Role(in.Role),
		Status:       enumPtr[models.UserStatus](in.Status),
		ProfileImage: in.ProfileImage,
		PhoneNumber:  in.PhoneNumber,
	})
	return r.userResult(ctx, "createUser", u, err)
}

func (r *Resolver) UpdateUser(ctx context.Context, args struct {
	ID    graphql.ID
	Input updateUserInput
}) *userResult {
	id, err := parseID(args.ID, "updateUser", "id")
	if err != nil {
		return r.userResult(ctx, "updateUser", models.User{}, err)
	}
	in := args.Input
	u, err := r.dir.UpdateUser(ctx, caller(ctx), id, directory.UpdateUserInput{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Password:     in.Password,
		Role:         enumPtr[models.Role](in.Role),
		Status:       enumPtr[models.UserStatus](in.Status),
		ProfileImage: in.ProfileImage,
		PhoneNumber:  in.PhoneNumber,
	})
	return r.userResult(ctx, "updateUser", u, err)
}

func (r *Resolver) DeleteUser(ctx context.Context, args idArgs) *operationResult {
	id, err := parseID(args.ID, "deleteUser", "id")
	if err == nil {
		err = r.dir.DeleteUser(ctx, caller(ctx), id)
	}
	return r.operation(ctx, "deleteUser", err, "User deleted")
}

func (in gradeInput) domain() directory.GradeInput {
	return directory.GradeInput{
		Name:         in.Name,
		Description:  in.Description,
		AcademicYear: in.AcademicYear,
		IsActive:     in.IsActive,
	}
}

func (r *Resolver) CreateGrade(ctx context.Context, args struct{ Input gradeInput }) *gradeResult {
	g, err := r.dir.CreateGrade(ctx, caller(ctx), args.Input.domain())
	return r.gradeResult(ctx, "createGrade", g, err)
}

func (r *Resolver) UpdateGrade(ctx context.Context, args struct {
	ID    graphql.ID
	Input gradeInput
}) *gradeResult {
	id, err := parseID(args.ID, "updateGrade", "id")
	if err != nil {
		return r.gradeResult(ctx, "updateGrade", models.Grade{}, err)
	}
	g, err := r.dir.UpdateGrade(ctx, caller(ctx), id, args.Input.domain())
	return r.gradeResult(ctx, "updateGrade", g, err)
}

func (r *Resolver) DeleteGrade(ctx context.Context, args idArgs) *operationResult {
	id, err := parseID(args.ID, "deleteGrade", "id")
	if err == nil {
		err = r.dir.DeleteGrade(ctx, caller(ctx), id)
	}
	return r.operation(ctx, "deleteGrade", err, "Grade deleted")
}

func (in subjectInput) domain(op string) (directory.SubjectInput, error) {
	gradeID, err := parseOptID(in.GradeID, op, "input", "gradeId")
	return directory.SubjectInput{
		Name:        in.Name,
		Code:        in.Code,
		Description: in.Description,
		IsActive:    in.IsActive,
		GradeID:     gradeID,
	}, err
}

func (r *Resolver) CreateSubject(ctx context.Context, args struct{ Input subjectInput }) *subjectResult {
	in, err := args.Input.domain("createSubject")
	if err != nil {
		return r.subjectResult(ctx, "createSubject", models.Subject{}, err)
	}
	s, err := r.dir.CreateSubject(ctx, caller(ctx), in)
	return r.subjectResult(ctx, "createSubject", s, err)
}

func (r *Resolver) UpdateSubject(ctx context.Context, args struct {
	ID    graphql.ID
	Input subjectInput
}) *subjectResult {
	id, err := parseID(args.ID, "updateSubject", "id")
	if err != nil {
		return r.subjectResult(ctx, "updateSubject", models.Subject{}, err)
	}
	in, err := args.Input.domain("updateSubject")
	if err != nil {
		return r.subjectResult(ctx, "updateSubject", models.Subject{}, err)
	}
	s, err := r.dir.UpdateSubject(ctx, caller(ctx), id, in)
	return r.subjectResult(ctx, "updateSubject", s, err)
}

func (r *Resolver) DeleteSubject(ctx context.Context, args idArgs) *operationResult {
	id, err := parseID(args.ID, "deleteSubject", "id")
	if err == nil {
		err = r.dir.DeleteSubject(ctx, caller(ctx), id)
	}
	return r.operation(ctx, "deleteSubject", err, "Subject deleted")
}

func (r *Resolver) AssignTeacher(ctx context.Context, args struct {
	TeacherID  graphql.ID
	SubjectIDs []graphql.ID
	GradeIDs   []graphql.ID
}) *operationResult {
	const op = "assignTeacher"
	teacherID, err := parseID(args.TeacherID, op, "teacherId")
	if err != nil {
		return r.operation(ctx, op, err, "")
	}
	subjectIDs, err := parseIDs(args.SubjectIDs, op, "subjectIds")
	if err != nil {
		return r.operation(ctx, op, err, "")
	}
	gradeIDs, err := parseIDs(args.GradeIDs, op, "gradeIds")
	if err != nil {
		return r.operation(ctx, op, err, "")
	}
	err = r.dir.AssignTeacher(ctx, caller(ctx), teacherID, subjectIDs, gradeIDs)
	return r.operation(ctx, op, err,
		fmt.Sprintf("Teacher assigned to %d subjects and %d grades", len(subjectIDs), len(gradeIDs)))
}

func (r *Resolver) EnrollStudent(ctx context.Context, args struct{ StudentID, GradeID graphql.ID }) *operationResult {
	const op = "enrollStudent"
	studentID, err := parseID(args.StudentID, op, "studentId")
	if err != nil {
		return r.operation(ctx, op, err, "")
	}
	gradeID, err := parseID(args.GradeID, op, "gradeId")
	if err == nil {
		err = r.dir.EnrollStudent(ctx, caller(ctx), studentID, gradeID)
	}
	return r.operation(ctx, op, err, "Student enrolled")
}

func (r *Resolver) CreateExam(ctx context.Context, args struct{ Input createExamInput }) *examResult {
	const op = "createExam"
	in := args.Input
	subjectID, err := parseID(in.SubjectID, op, "subjectId")
	if err != nil {
		return r.examResult(ctx, op, models.Exam{}, err)
	}
	gradeID, err := parseID(in.GradeID, op, "gradeId")
	if err != nil {
		return r.examResult(ctx, op, models.Exam{}, err)
	}
	e, err := r.exams.CreateExam(ctx, caller(ctx), exam.CreateInput{
		Title:            in.Title,
		Description:      in.Description,
		Instructions:     in.Instructions,
		SubjectID:        subjectID,
		GradeID:          gradeID,
		Duration:         int(in.Duration),
		Passmark:         in.Passmark,
		ShuffleQuestions: in.ShuffleQuestions,
		AllowReview:      in.AllowReview,
		ShowResults:      in.ShowResults,
		StartDate:        fromOptTime(in.StartDate),
		EndDate:          fromOptTime(in.EndDate),
	})
	return r.examResult(ctx, op, e, err)
}

func (r *Resolver) UpdateExam(ctx context.Context, args struct {
	ID    graphql.ID
	Input updateExamInput
}) *examResult {
	const op = "updateExam"
	id, err := parseID(args.ID, op, "id")
	if err != nil {
		return r.examResult(ctx, op, models.Exam{}, err)
	}
	in := args.Input
	subjectID, err := parseOptID(in.SubjectID, op, "subjectId")
	if err != nil {
		return r.examResult(ctx, op, models.Exam{}, err)
	}
	gradeID, err := parseOptID(in.GradeID, op, "gradeId")
	if err != nil {
		return r.examResult(ctx, op, models.Exam{}, err)
	}
	e, err := r.exams.UpdateExam(ctx, caller(ctx), id, exam.UpdateInput{
		Title:            in.Title,
		Description:      in.Description,
		Instructions:     in.Instructions,
		SubjectID:        subjectID,
		GradeID:          gradeID,
		Duration:         fromOptInt32(in.Duration),
		Passmark:         in.Passmark,
		ShuffleQuestions: in.ShuffleQuestions,
		AllowReview:      in.AllowReview,
		ShowResults:      in.ShowResults,
		StartDate:        fromOptTime(in.StartDate),
		EndDate:          fromOptTime(in.EndDate),
		Status:           enumPtr[models.ExamStatus](in.Status),
	})
	return r.examResult(ctx, op, e, err)
}

func (r *Resolver) DeleteExam(ctx context.Context, args idArgs) *operationResult {
	id, err := parseID(args.ID, "deleteExam", "id")
	if err == nil {
		err = r.exams.DeleteExam(ctx, caller(ctx), id)
	}
	return r.operation(ctx, "deleteExam", err, "Exam deleted")
}

func (r *Resolver) PublishExam(ctx context.Context, args idArgs) *examResult {
	id, err := parseID(args.ID, "publishExam", "id")
	if err != nil {
		return r.examResult(ctx, "publishExam", models.Exam{}, err)
	}
	e, err := r.exams.PublishExam(ctx, caller(ctx), id)
	return r.examResult(ctx, "publishExam", e, err)
}

func (r *Resolver) ArchiveExam(ctx context.Context, args idArgs) *examResult {
	id, err := parseID(args.ID, "archiveExam", "id")
	if err != nil {
		return r.examResult(ctx, "archiveExam", models.Exam{}, err)
	}
	e, err := r.exams.ArchiveExam(ctx, caller(ctx), id)
	return r.examResult(ctx, "archiveExam", e, err)
}

func (in questionInput) domain() exam.QuestionInput {
	return exam.QuestionInput{
		QuestionNumber:  fromOptInt32(in.QuestionNumber),
		Text:            in.Text,
		Type:            enumPtr[models.QuestionType](in.Type),
		Options:         in.Options,
		CorrectAnswer:   in.CorrectAnswer,
		Points:          in.Points,
		DifficultyLevel: enumPtr[models.Difficulty](in.DifficultyLevel),
		Tags:            in.Tags,
		Feedback:        in.Feedback,
		Image:           in.Image,
	}
}

func (r *Resolver) CreateQuestion(ctx context.Context, args struct {
	ExamID graphql.ID
	Input  questionInput
}) *questionResult {
	examID, err := parseID(args.ExamID, "createQuestion", "examId")
	if err != nil {
		return r.questionResult(ctx, "createQuestion", models.Question{}, err)
	}
	q, err := r.exams.CreateQuestion(ctx, caller(ctx), examID, args.Input.domain())
	return r.questionResult(ctx, "createQuestion", q, err)
}

func (r *Resolver) UpdateQuestion(ctx context.Context, args struct {
	ID    graphql.ID
	Input questionInput
}) *questionResult {
	id, err := parseID(args.ID, "updateQuestion", "id")
	if err != nil {
		return r.questionResult(ctx, "updateQuestion", models.Question{}, err)
	}
	q, err := r.exams.UpdateQuestion(ctx, caller(ctx), id, args.Input.domain())
	return r.questionResult(ctx, "updateQuestion", q, err)
}

func (r *Resolver) DeleteQuestion(ctx context.Context, args idArgs) *operationResult {
	id, err := parseID(args.ID, "deleteQuestion", "id")
	if err == nil {
		err = r.exams.DeleteQuestion(ctx, caller(ctx), id)
	}
	return r.operation(ctx, "deleteQuestion", err, "Question deleted")
}

func (r *Resolver) StartExam(ctx context.Context, args struct{ ExamID graphql.ID }) *studentExamResult {
	examID, err := parseID(args.ExamID, "startExam", "examId")
	if err != nil {
		return r.studentExamResult(ctx, "startExam", models.ExamAttempt{}, err)
	}
	a, err := r.exams.StartAttempt(ctx, caller(ctx), examID)
	return r.studentExamResult(ctx, "startExam", a, err)
}

func (r *Resolver) SubmitAnswer(ctx context.Context, args struct{ Input submitAnswerInput }) *studentAnswerResult {
	const op = "submitAnswer"
	in := args.Input
	attemptID, err := parseID(in.StudentExamID, op, "studentExamId")
	if err != nil {
		return &studentAnswerResult{outcome: r.fail(ctx, op, err)}
	}
	questionID, err := parseID(in.QuestionID, op, "questionId")
	if err != nil {
		return &studentAnswerResult{outcome: r.fail(ctx, op, err)}
	}
	a, err := r.exams.SubmitAnswer(ctx, caller(ctx), exam.SubmitAnswerInput{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Selected:   in.SelectedAnswer,
		IsMarked:   in.IsMarked,
		TimeTaken:  fromOptInt32(in.TimeTaken),
	})
	if err != nil {
		return &studentAnswerResult{outcome: r.fail(ctx, op, err)}
	}
	return &studentAnswerResult{answer: answer(a)}
}

func (r *Resolver) SubmitExam(ctx context.Context, args struct{ Input submitExamInput }) *studentExamResult {
	const op = "submitExam"
	in := args.Input
	attemptID, err := parseID(in.StudentExamID, op, "studentExamId")
	if err != nil {
		return r.studentExamResult(ctx, op, models.ExamAttempt{}, err)
	}
	var answers []exam.AnswerInput
	if in.Answers != nil {
		for _, a := range *in.Answers {
			questionID, err := parseID(a.QuestionID, op, "answers", "questionId")
			if err != nil {
				return r.studentExamResult(ctx, op, models.ExamAttempt{}, err)
			}
			answers = append(answers, exam.AnswerInput{
				QuestionID: questionID,
				Selected:   a.SelectedAnswer,
				IsMarked:   a.IsMarked,
				TimeTaken:  fromOptInt32(a.TimeTaken),
			})
		}
	}
	att, err := r.exams.SubmitExam(ctx, caller(ctx), exam.SubmitExamInput{AttemptID: attemptID, Answers: answers})
	return r.studentExamResult(ctx, op, att, err)
}

func (r *Resolver) MarkNotificationRead(ctx context.Context, args idArgs) *notificationResult {
	id, err := parseID(args.ID, "markNotificationRead", "id")
	if err != nil {
		return &notificationResult{outcome: r.fail(ctx, "markNotificationRead", err)}
	}
	n, err := r.dir.MarkNotificationRead(ctx, caller(ctx), id)
	if err != nil {
		return &notificationResult{outcome: r.fail(ctx, "markNotificationRead", err)}
	}
	return &notificationResult{notification: notification(n)}
}
