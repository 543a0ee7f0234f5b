package graph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"mcsh-server/auth"
	"mcsh-server/directory"
	"mcsh-server/exam"
	"mcsh-server/memstore"
	"mcsh-server/models"
	"mcsh-server/policy"
)

var (
	admin     = models.Caller{ID: 1, Role: models.RoleAdmin}
	teacher   = models.Caller{ID: 2, Role: models.RoleTeacher}
	student   = models.Caller{ID: 4, Role: models.RoleStudent}
	anonymous = models.Caller{}
)

type fixture struct {
	store  *memstore.Store
	schema *graphql.Schema
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	hasher := auth.Hasher{Cost: bcrypt.MinCost}
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	for _, u := range []models.User{
		{ID: admin.ID, FirstName: "Ada", LastName: "Admin", Email: "admin@school.test", Role: models.RoleAdmin},
		{ID: teacher.ID, FirstName: "Tom", LastName: "Teacher", Email: "tom@school.test", Role: models.RoleTeacher},
		{ID: student.ID, FirstName: "Sam", LastName: "Student", Email: "sam@school.test", Role: models.RoleStudent},
	} {
		u.PasswordHash, u.Status = hash, models.UserActive
		st.Users[u.ID] = u
	}
	st.Grades[20] = models.Grade{ID: 20, Name: "Grade 7", AcademicYear: "2026", IsActive: true}
	st.Grades[21] = models.Grade{ID: 21, Name: "Grade 8", AcademicYear: "2026", IsActive: true}
	st.Grades[22] = models.Grade{ID: 22, Name: "Grade 9", AcademicYear: "2026", IsActive: true}
	st.Subjects[10] = models.Subject{ID: 10, Name: "Maths", Code: "MATH7", GradeID: 20, IsActive: true}
	st.Teaching[teacher.ID] = models.Assignments{SubjectIDs: []int64{10}, GradeIDs: []int64{20}}
	st.Enrolled[student.ID] = []int64{20}

	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)
	pol := policy.New(st)
	tokens := auth.NewTokenManager("graph-test-key", "mcsh-test", time.Hour)
	dir := directory.NewService(st, pol, tokens, hasher, log)
	exams := exam.NewService(st, pol, log, exam.NewMetrics(prometheus.NewRegistry()))
	return &fixture{store: st, schema: NewSchema(NewResolver(exams, dir, log)), logs: logs}
}

func (f *fixture) run(t *testing.T, c models.Caller, query string, vars map[string]any) map[string]any {
	t.Helper()
	// Round-trip the variables so they arrive as a decoded HTTP body would.
	raw, err := json.Marshal(vars)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	resp := f.schema.Exec(auth.WithCaller(context.Background(), c), query, "", decoded)
	require.Empty(t, resp.Errors)
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

// field walks a decoded response along keys.
func field(t *testing.T, v any, keys ...string) any {
	t.Helper()
	for _, k := range keys {
		m, ok := v.(map[string]any)
		require.True(t, ok, "expected an object at %q, got %T", k, v)
		v = m[k]
	}
	return v
}

const errorFields = `... on Error { code message path }`

func TestLogin(t *testing.T) {
	f := newFixture(t)
	const q = `mutation($email: String!, $password: String!) {
		login(email: $email, password: $password) {
			__typename
			... on AuthPayload { token user { email role } }
			` + errorFields + `
		}
	}`

	out := f.run(t, anonymous, q, map[string]any{"email": "sam@school.test", "password": "correct horse"})
	require.Equal(t, "AuthPayload", field(t, out, "login", "__typename"))
	require.NotEmpty(t, field(t, out, "login", "token"))
	require.Equal(t, "STUDENT", field(t, out, "login", "user", "role"))

	out = f.run(t, anonymous, q, map[string]any{"email": "sam@school.test", "password": "wrong"})
	require.Equal(t, "Error", field(t, out, "login", "__typename"))
	require.Equal(t, "UNAUTHORIZED", field(t, out, "login", "code"))
	require.Equal(t, "Invalid email or password", field(t, out, "login", "message"))
}

func TestMeNeedsIdentity(t *testing.T) {
	f := newFixture(t)
	const q = `{ me { ... on User { fullName grades { name } } ` + errorFields + ` } }`

	out := f.run(t, student, q, nil)
	require.Equal(t, "Sam Student", field(t, out, "me", "fullName"))
	require.Equal(t, []any{map[string]any{"name": "Grade 7"}}, field(t, out, "me", "grades"))

	out = f.run(t, anonymous, q, nil)
	require.Equal(t, "UNAUTHORIZED", field(t, out, "me", "code"))
}

func TestMalformedIDIsValidationError(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, admin, `{ exam(id: "abc") { `+errorFields+` } }`, nil)
	require.Equal(t, "VALIDATION_ERROR", field(t, out, "exam", "code"))
	require.Equal(t, []any{"exam", "id"}, field(t, out, "exam", "path"))
}

func TestGradesPagination(t *testing.T) {
	f := newFixture(t)
	const q = `query($after: String) {
		grades(page: {first: 2, after: $after}) {
			... on GradeConnection {
				totalCount
				edges { cursor node { name } }
				pageInfo { hasNextPage hasPreviousPage endCursor }
			}
			` + errorFields + `
		}
	}`

	out := f.run(t, admin, q, nil)
	require.EqualValues(t, 3, field(t, out, "grades", "totalCount"))
	require.Len(t, field(t, out, "grades", "edges"), 2)
	require.Equal(t, true, field(t, out, "grades", "pageInfo", "hasNextPage"))
	require.Equal(t, false, field(t, out, "grades", "pageInfo", "hasPreviousPage"))

	end := field(t, out, "grades", "pageInfo", "endCursor")
	out = f.run(t, admin, q, map[string]any{"after": end})
	edges := field(t, out, "grades", "edges").([]any)
	require.Len(t, edges, 1)
	require.Equal(t, "Grade 9", field(t, edges[0], "node", "name"))
	require.Equal(t, false, field(t, out, "grades", "pageInfo", "hasNextPage"))
	require.Equal(t, true, field(t, out, "grades", "pageInfo", "hasPreviousPage"))

	out = f.run(t, admin, q, map[string]any{"after": "not a cursor"})
	require.Equal(t, "VALIDATION_ERROR", field(t, out, "grades", "code"))
}

func TestExamLifecycle(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, teacher, `mutation {
		createExam(input: {title: "Fractions", subjectId: "10", gradeId: "20", duration: 30, passmark: 50}) {
			... on Exam { id status subject { code } createdBy { email } }
			`+errorFields+`
		}
	}`, nil)
	require.Equal(t, "DRAFT", field(t, out, "createExam", "status"))
	require.Equal(t, "MATH7", field(t, out, "createExam", "subject", "code"))
	require.Equal(t, "tom@school.test", field(t, out, "createExam", "createdBy", "email"))
	examID := field(t, out, "createExam", "id")

	const addQuestion = `mutation($exam: ID!, $input: QuestionInput!) {
		createQuestion(examId: $exam, input: $input) { ... on Question { id questionNumber } ` + errorFields + ` }
	}`
	out = f.run(t, teacher, addQuestion, map[string]any{"exam": examID, "input": map[string]any{
		"text": "1/2 + 1/4?", "type": "MULTIPLE_CHOICE", "options": []string{"1/4", "3/4", "2/6"},
		"correctAnswer": "3/4", "points": 5,
	}})
	mcID := field(t, out, "createQuestion", "id")
	require.EqualValues(t, 1, field(t, out, "createQuestion", "questionNumber"))
	out = f.run(t, teacher, addQuestion, map[string]any{"exam": examID, "input": map[string]any{
		"text": "Explain why.", "type": "ESSAY", "points": 5,
	}})
	require.EqualValues(t, 2, field(t, out, "createQuestion", "questionNumber"))

	out = f.run(t, teacher, `mutation($id: ID!) { publishExam(id: $id) { ... on Exam { status totalPoints questionCount } } }`,
		map[string]any{"id": examID})
	require.Equal(t, "PUBLISHED", field(t, out, "publishExam", "status"))
	require.EqualValues(t, 10, field(t, out, "publishExam", "totalPoints"))
	require.EqualValues(t, 2, field(t, out, "publishExam", "questionCount"))

	out = f.run(t, student, `mutation($id: ID!) { startExam(examId: $id) { ... on StudentExam { id status remainingTime } } }`,
		map[string]any{"id": examID})
	require.Equal(t, "IN_PROGRESS", field(t, out, "startExam", "status"))
	attemptID := field(t, out, "startExam", "id")

	out = f.run(t, student, `query($id: ID!) { examQuestions(examId: $id) { ... on QuestionList { items { id correctAnswer } } } }`,
		map[string]any{"id": examID})
	items := field(t, out, "examQuestions", "items").([]any)
	require.Len(t, items, 2)
	require.Nil(t, field(t, items[0], "correctAnswer"))

	out = f.run(t, student, `mutation($a: ID!, $q: ID!) {
		submitAnswer(input: {studentExamId: $a, questionId: $q, selectedAnswer: "3/4", timeTaken: 40}) {
			... on StudentAnswer { selectedAnswer timeTaken }
			`+errorFields+`
		}
	}`, map[string]any{"a": attemptID, "q": mcID})
	require.Equal(t, "3/4", field(t, out, "submitAnswer", "selectedAnswer"))
	require.EqualValues(t, 40, field(t, out, "submitAnswer", "timeTaken"))

	const submit = `mutation($a: ID!) {
		submitExam(input: {studentExamId: $a}) {
			... on StudentExam { status score isPassed answeredCount }
			` + errorFields + `
		}
	}`
	out = f.run(t, student, submit, map[string]any{"a": attemptID})
	require.Equal(t, "COMPLETED", field(t, out, "submitExam", "status"))
	require.EqualValues(t, 50, field(t, out, "submitExam", "score"))
	require.Equal(t, true, field(t, out, "submitExam", "isPassed"))
	require.EqualValues(t, 1, field(t, out, "submitExam", "answeredCount"))

	out = f.run(t, student, submit, map[string]any{"a": attemptID})
	require.Equal(t, "EXAM_ALREADY_COMPLETED", field(t, out, "submitExam", "code"))

	out = f.run(t, student, `{ notifications { ... on NotificationConnection { totalCount edges { node { title } } } } }`, nil)
	require.EqualValues(t, 1, field(t, out, "notifications", "totalCount"))

	out = f.run(t, teacher, `query($id: ID!) { exam(id: $id) { ... on Exam { averageScore passRate } } }`,
		map[string]any{"id": examID})
	require.EqualValues(t, 50, field(t, out, "exam", "averageScore"))
	require.EqualValues(t, 100, field(t, out, "exam", "passRate"))

	out = f.run(t, teacher, `mutation($id: ID!) { deleteExam(id: $id) { `+errorFields+` } }`, map[string]any{"id": examID})
	require.Equal(t, "BUSINESS_RULE_VIOLATION", field(t, out, "deleteExam", "code"))
}

func TestStudentCannotCreateExam(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, student, `mutation {
		createExam(input: {title: "Nope", subjectId: "10", gradeId: "20", duration: 10}) { `+errorFields+` }
	}`, nil)
	require.Equal(t, "FORBIDDEN", field(t, out, "createExam", "code"))
}

func TestOperationResults(t *testing.T) {
	f := newFixture(t)
	const q = `mutation($t: ID!, $s: [ID!]!, $g: [ID!]!) {
		assignTeacher(teacherId: $t, subjectIds: $s, gradeIds: $g) {
			... on OperationSuccess { success message }
			` + errorFields + `
		}
	}`
	vars := map[string]any{"t": "2", "s": []string{"10"}, "g": []string{"20", "21"}}

	out := f.run(t, admin, q, vars)
	require.Equal(t, true, field(t, out, "assignTeacher", "success"))
	require.Equal(t, "Teacher assigned to 1 subjects and 2 grades", field(t, out, "assignTeacher", "message"))

	f.store.FailAssignments = true
	out = f.run(t, admin, q, vars)
	require.Equal(t, "INTERNAL_ERROR", field(t, out, "assignTeacher", "code"))
	require.NotContains(t, field(t, out, "assignTeacher", "message"), "connection reset")
	logged := f.logs.FilterMessage("operation failed").All()
	require.Len(t, logged, 1)
	require.Equal(t, "assignTeacher", logged[0].ContextMap()["operation"])

	out = f.run(t, teacher, q, vars)
	require.Equal(t, "FORBIDDEN", field(t, out, "assignTeacher", "code"))
}

func TestRelationFields(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.store.Exams[30] = models.Exam{ID: 30, Title: "Published", SubjectID: 10, GradeID: 20, CreatedByID: teacher.ID,
		Duration: 30, Status: models.ExamPublished}
	f.store.Exams[31] = models.Exam{ID: 31, Title: "Draft", SubjectID: 10, GradeID: 20, CreatedByID: teacher.ID,
		Duration: 30, Status: models.ExamDraft}
	f.store.Attempts[40] = models.ExamAttempt{ID: 40, ExamID: 30, StudentID: student.ID,
		Status: models.AttemptCompleted, StartTime: now, EndTime: &now}
	f.store.Notifications[50] = models.Notification{ID: 50, RecipientID: student.ID, Title: "Graded", CreatedAt: now}

	const me = `{ me { ... on User {
		teacherSubjects { code } teacherGrades { name } studentGrades { name }
		createdExams { totalCount } studentExams { totalCount } notifications { totalCount }
	} } }`
	out := f.run(t, teacher, me, nil)
	require.Equal(t, []any{map[string]any{"code": "MATH7"}}, field(t, out, "me", "teacherSubjects"))
	require.Equal(t, []any{map[string]any{"name": "Grade 7"}}, field(t, out, "me", "teacherGrades"))
	require.Empty(t, field(t, out, "me", "studentGrades"))
	require.EqualValues(t, 2, field(t, out, "me", "createdExams", "totalCount"))

	out = f.run(t, student, me, nil)
	require.Empty(t, field(t, out, "me", "teacherSubjects"))
	require.Empty(t, field(t, out, "me", "teacherGrades"))
	require.Equal(t, []any{map[string]any{"name": "Grade 7"}}, field(t, out, "me", "studentGrades"))
	require.EqualValues(t, 1, field(t, out, "me", "studentExams", "totalCount"))
	require.EqualValues(t, 1, field(t, out, "me", "notifications", "totalCount"))

	// other users' notifications stay private, even to an admin
	out = f.run(t, admin, `{ user(id: "4") { ... on User { notifications { totalCount } studentExams { totalCount } } } }`, nil)
	require.EqualValues(t, 0, field(t, out, "user", "notifications", "totalCount"))
	require.EqualValues(t, 1, field(t, out, "user", "studentExams", "totalCount"))

	const exams = `{
		subject(id: "10") { ... on Subject { exams { totalCount } } }
		grade(id: "20") { ... on Grade { exams { totalCount edges { node { title } } } } }
	}`
	out = f.run(t, teacher, exams, nil)
	require.EqualValues(t, 2, field(t, out, "subject", "exams", "totalCount"))
	require.EqualValues(t, 2, field(t, out, "grade", "exams", "totalCount"))

	out = f.run(t, student, exams, nil)
	require.EqualValues(t, 1, field(t, out, "subject", "exams", "totalCount"))
	edges := field(t, out, "grade", "exams", "edges").([]any)
	require.Len(t, edges, 1)
	require.Equal(t, "Published", field(t, edges[0], "node", "title"))
}
