package graph

import (
	"context"

	"mcsh-server/directory"
	"mcsh-server/models"
)

type authResult struct {
	outcome
	payload *authPayloadResolver
}

func (r *authResult) ToAuthPayload() (*authPayloadResolver, bool) { return r.payload, r.payload != nil }

func (r *Resolver) authResult(ctx context.Context, op string, p directory.AuthPayload, err error) *authResult {
	if err != nil {
		return &authResult{outcome: r.fail(ctx, op, err)}
	}
	return &authResult{payload: &authPayloadResolver{r: r, p: p}}
}

type userResult struct {
	outcome
	user *userResolver
}

func (r *userResult) ToUser() (*userResolver, bool) { return r.user, r.user != nil }

func (r *Resolver) userResult(ctx context.Context, op string, u models.User, err error) *userResult {
	if err != nil {
		return &userResult{outcome: r.fail(ctx, op, err)}
	}
	return &userResult{user: r.user(u)}
}

type userConnectionResult struct {
	outcome
	conn *connection[*userResolver]
}

func (r *userConnectionResult) ToUserConnection() (*connection[*userResolver], bool) {
	return r.conn, r.conn != nil
}

type gradeResult struct {
	outcome
	grade *gradeResolver
}

func (r *gradeResult) ToGrade() (*gradeResolver, bool) { return r.grade, r.grade != nil }

func (r *Resolver) gradeResult(ctx context.Context, op string, g models.Grade, err error) *gradeResult {
	if err != nil {
		return &gradeResult{outcome: r.fail(ctx, op, err)}
	}
	return &gradeResult{grade: r.grade(g)}
}

type gradeConnectionResult struct {
	outcome
	conn *connection[*gradeResolver]
}

func (r *gradeConnectionResult) ToGradeConnection() (*connection[*gradeResolver], bool) {
	return r.conn, r.conn != nil
}

type subjectResult struct {
	outcome
	subject *subjectResolver
}

func (r *subjectResult) ToSubject() (*subjectResolver, bool) { return r.subject, r.subject != nil }

func (r *Resolver) subjectResult(ctx context.Context, op string, s models.Subject, err error) *subjectResult {
	if err != nil {
		return &subjectResult{outcome: r.fail(ctx, op, err)}
	}
	return &subjectResult{subject: r.subject(s)}
}

type subjectConnectionResult struct {
	outcome
	conn *connection[*subjectResolver]
}

func (r *subjectConnectionResult) ToSubjectConnection() (*connection[*subjectResolver], bool) {
	return r.conn, r.conn != nil
}

type examResult struct {
	outcome
	exam *examResolver
}

func (r *examResult) ToExam() (*examResolver, bool) { return r.exam, r.exam != nil }

func (r *Resolver) examResult(ctx context.Context, op string, e models.Exam, err error) *examResult {
	if err != nil {
		return &examResult{outcome: r.fail(ctx, op, err)}
	}
	return &examResult{exam: r.exam(e)}
}

type examConnectionResult struct {
	outcome
	conn *connection[*examResolver]
}

func (r *examConnectionResult) ToExamConnection() (*connection[*examResolver], bool) {
	return r.conn, r.conn != nil
}

type questionResult struct {
	outcome
	question *questionResolver
}

func (r *questionResult) ToQuestion() (*questionResolver, bool) { return r.question, r.question != nil }

func (r *Resolver) questionResult(ctx context.Context, op string, q models.Question, err error) *questionResult {
	if err != nil {
		return &questionResult{outcome: r.fail(ctx, op, err)}
	}
	return &questionResult{question: question(q)}
}

type questionListResult struct {
	outcome
	list *questionList
}

func (r *questionListResult) ToQuestionList() (*questionList, bool) { return r.list, r.list != nil }

type studentExamResult struct {
	outcome
	attempt *attemptResolver
}

func (r *studentExamResult) ToStudentExam() (*attemptResolver, bool) {
	return r.attempt, r.attempt != nil
}

func (r *Resolver) studentExamResult(ctx context.Context, op string, a models.ExamAttempt, err error) *studentExamResult {
	if err != nil {
		return &studentExamResult{outcome: r.fail(ctx, op, err)}
	}
	return &studentExamResult{attempt: r.attempt(a)}
}

type studentExamConnectionResult struct {
	outcome
	conn *connection[*attemptResolver]
}

func (r *studentExamConnectionResult) ToStudentExamConnection() (*connection[*attemptResolver], bool) {
	return r.conn, r.conn != nil
}

type studentAnswerResult struct {
	outcome
	answer *answerResolver
}

func (r *studentAnswerResult) ToStudentAnswer() (*answerResolver, bool) {
	return r.answer, r.answer != nil
}

type notificationResult struct {
	outcome
	notification *notificationResolver
}

func (r *notificationResult) ToNotification() (*notificationResolver, bool) {
	return r.notification, r.notification != nil
}

type notificationConnectionResult struct {
	outcome
	conn *connection[*notificationResolver]
}

func (r *notificationConnectionResult) ToNotificationConnection() (*connection[*notificationResolver], bool) {
	return r.conn, r.conn != nil
}
