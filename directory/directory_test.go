package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mcsh-server/apperr"
	"mcsh-server/auth"
	"mcsh-server/memstore"
	"mcsh-server/models"
	"mcsh-server/policy"
	"mcsh-server/utils"
)

var (
	admin     = models.Caller{ID: 1, Role: models.RoleAdmin}
	teacher   = models.Caller{ID: 2, Role: models.RoleTeacher}
	student   = models.Caller{ID: 4, Role: models.RoleStudent}
	anonymous = models.Caller{}
)

type fixture struct {
	store  *memstore.Store
	svc    *Service
	tokens *auth.TokenManager
	hasher auth.Hasher
	now    time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  memstore.New(),
		tokens: auth.NewTokenManager("test-signing-key", "mcsh-test", time.Hour),
		hasher: auth.Hasher{Cost: bcrypt.MinCost},
		now:    time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC),
	}
	hash, err := f.hasher.Hash("correct horse")
	require.NoError(t, err)
	f.store.Users[admin.ID] = models.User{ID: admin.ID, FirstName: "Ada", LastName: "Admin", Email: "admin@school.test",
		PasswordHash: hash, Role: models.RoleAdmin, Status: models.UserActive}
	f.store.Users[teacher.ID] = models.User{ID: teacher.ID, FirstName: "Tom", LastName: "Teacher", Email: "tom@school.test",
		PasswordHash: hash, Role: models.RoleTeacher, Status: models.UserActive}
	f.store.Users[student.ID] = models.User{ID: student.ID, FirstName: "Sam", LastName: "Student", Email: "sam@school.test",
		PasswordHash: hash, Role: models.RoleStudent, Status: models.UserActive}
	f.store.Grades[20] = models.Grade{ID: 20, Name: "Grade 7", AcademicYear: "2026", IsActive: true}
	f.store.Grades[21] = models.Grade{ID: 21, Name: "Grade 8", AcademicYear: "2026", IsActive: true}
	f.store.Subjects[10] = models.Subject{ID: 10, Name: "Maths", Code: "MATH7", GradeID: 20, IsActive: true}
	f.store.Teaching[teacher.ID] = models.Assignments{SubjectIDs: []int64{10}, GradeIDs: []int64{20}}

	opts = append(opts, WithClock(func() time.Time { return f.now }))
	f.svc = NewService(f.store, policy.New(f.store), f.tokens, f.hasher, zap.NewNop(), opts...)
	return f
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperr.As(err).Code, err.Error())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Login(ctx, " SAM@school.test ", "correct horse")
	require.NoError(t, err)
	require.Equal(t, student.ID, p.User.ID)
	require.Equal(t, f.now, *p.User.LastLogin)
	c, err := f.tokens.Parse(p.Token)
	require.NoError(t, err)
	require.Equal(t, student, c)

	_, err = f.svc.Login(ctx, "sam@school.test", "wrong password")
	requireCode(t, err, apperr.Unauthorized)
	_, err = f.svc.Login(ctx, "nobody@school.test", "correct horse")
	requireCode(t, err, apperr.Unauthorized)

	u := f.store.Users[student.ID]
	u.Status = models.UserSuspended
	f.store.Users[student.ID] = u
	_, err = f.svc.Login(ctx, "sam@school.test", "correct horse")
	requireCode(t, err, apperr.Forbidden)
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Signup(context.Background(), SignupInput{FirstName: "New", LastName: "Kid", Email: "kid@school.test", Password: "longenough"})
	requireCode(t, err, apperr.Forbidden)

	f = newFixture(t, WithSignup(true))
	ctx := context.Background()
	p, err := f.svc.Signup(ctx, SignupInput{FirstName: "New", LastName: "Kid", Email: "kid@school.test", Password: "longenough"})
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, p.User.Role)
	require.Equal(t, models.UserActive, p.User.Status)
	require.NotEmpty(t, p.Token)

	_, err = f.svc.Signup(ctx, SignupInput{FirstName: "New", LastName: "Kid", Email: "KID@school.test", Password: "longenough"})
	requireCode(t, err, apperr.AlreadyExists)

	_, err = f.svc.Signup(ctx, SignupInput{FirstName: "New", LastName: "Kid", Email: "kid2@school.test", Password: "short"})
	requireCode(t, err, apperr.Validation)
	require.Equal(t, []string{"signup", "password"}, apperr.As(err).Path)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.Me(context.Background(), teacher)
	require.NoError(t, err)
	require.Equal(t, "Tom Teacher", u.FullName())
	_, err = f.svc.Me(context.Background(), anonymous)
	requireCode(t, err, apperr.Unauthorized)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateUserInput{FirstName: "Tia", LastName: "Tutor", Email: "tia@school.test", Password: "password1", Role: models.RoleTeacher}

	_, err := f.svc.CreateUser(ctx, teacher, in)
	requireCode(t, err, apperr.Forbidden)

	u, err := f.svc.CreateUser(ctx, admin, in)
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, u.Role)
	ok, err := f.hasher.Check(u.PasswordHash, "password1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, f.store.Events, 1)
	ev := f.store.Events[0]
	require.Equal(t, []string{"admin#1", "create_user", "tia@school.test"}, []string{ev.Actor, ev.Action, ev.Target})

	bad := in
	bad.Email = "not-an-email"
	_, err = f.svc.CreateUser(ctx, admin, bad)
	requireCode(t, err, apperr.Validation)
	require.Equal(t, []string{"createUser", "email"}, apperr.As(err).Path)

	bad = in
	bad.Role = "JANITOR"
	_, err = f.svc.CreateUser(ctx, admin, bad)
	requireCode(t, err, apperr.Validation)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.UpdateUser(ctx, student, student.ID, UpdateUserInput{PhoneNumber: utils.Ptr("555-0101")})
	require.NoError(t, err)
	require.Equal(t, "555-0101", *u.PhoneNumber)

	_, err = f.svc.UpdateUser(ctx, student, teacher.ID, UpdateUserInput{FirstName: utils.Ptr("X")})
	requireCode(t, err, apperr.Forbidden)

	promoted := models.RoleAdmin
	_, err = f.svc.UpdateUser(ctx, student, student.ID, UpdateUserInput{Role: &promoted})
	requireCode(t, err, apperr.Forbidden)

	suspended := models.UserSuspended
	u, err = f.svc.UpdateUser(ctx, admin, student.ID, UpdateUserInput{Status: &suspended})
	require.NoError(t, err)
	require.Equal(t, models.UserSuspended, u.Status)

	_, err = f.svc.UpdateUser(ctx, admin, admin.ID, UpdateUserInput{Status: &suspended})
	requireCode(t, err, apperr.BusinessRule)

	_, err = f.svc.UpdateUser(ctx, teacher, teacher.ID, UpdateUserInput{Email: utils.Ptr("sam@school.test")})
	requireCode(t, err, apperr.AlreadyExists)
}

func TestListUsersForTeacherShowsStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.ListUsers(ctx, teacher, models.UserFilter{}, models.ListOptions{})
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	require.Equal(t, student.ID, p.Items[0].ID)

	role := models.RoleAdmin
	_, err = f.svc.ListUsers(ctx, teacher, models.UserFilter{Role: &role}, models.ListOptions{})
	requireCode(t, err, apperr.Forbidden)
	_, err = f.svc.ListUsers(ctx, student, models.UserFilter{}, models.ListOptions{})
	requireCode(t, err, apperr.Forbidden)

	p, err = f.svc.ListUsers(ctx, admin, models.UserFilter{}, models.ListOptions{})
	require.NoError(t, err)
	require.Len(t, p.Items, 3)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requireCode(t, f.svc.DeleteUser(ctx, teacher, student.ID), apperr.Forbidden)
	requireCode(t, f.svc.DeleteUser(ctx, admin, admin.ID), apperr.BusinessRule)
	require.NoError(t, f.svc.DeleteUser(ctx, admin, student.ID))
	requireCode(t, f.svc.DeleteUser(ctx, admin, student.ID), apperr.NotFound)
}

func TestGradesAndSubjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGrade(ctx, teacher, GradeInput{Name: utils.Ptr("Grade 9"), AcademicYear: utils.Ptr("2026")})
	requireCode(t, err, apperr.Forbidden)
	g, err := f.svc.CreateGrade(ctx, admin, GradeInput{Name: utils.Ptr("Grade 9"), AcademicYear: utils.Ptr("2026")})
	require.NoError(t, err)
	require.True(t, g.IsActive)
	_, err = f.svc.CreateGrade(ctx, admin, GradeInput{Name: utils.Ptr("Grade 9"), AcademicYear: utils.Ptr("2027")})
	requireCode(t, err, apperr.AlreadyExists)

	_, err = f.svc.CreateSubject(ctx, admin, SubjectInput{Name: utils.Ptr("Art"), Code: utils.Ptr("art9"), GradeID: utils.Ptr(int64(999))})
	requireCode(t, err, apperr.NotFound)
	sub, err := f.svc.CreateSubject(ctx, admin, SubjectInput{Name: utils.Ptr("Art"), Code: utils.Ptr(" art9 "), GradeID: &g.ID})
	require.NoError(t, err)
	require.Equal(t, "ART9", sub.Code)
	_, err = f.svc.CreateSubject(ctx, admin, SubjectInput{Name: utils.Ptr("Art 2"), Code: utils.Ptr("ART9"), GradeID: &g.ID})
	requireCode(t, err, apperr.AlreadyExists)

	byCode, err := f.svc.GetSubjectByCode(ctx, student, "art9")
	require.NoError(t, err)
	require.Equal(t, sub.ID, byCode.ID)
	_, err = f.svc.GetSubjectByCode(ctx, anonymous, "art9")
	requireCode(t, err, apperr.Unauthorized)

	requireCode(t, f.svc.DeleteGrade(ctx, admin, g.ID), apperr.BusinessRule)

	f.store.Exams[900] = models.Exam{ID: 900, SubjectID: sub.ID, GradeID: g.ID}
	requireCode(t, f.svc.DeleteSubject(ctx, admin, sub.ID), apperr.BusinessRule)
	delete(f.store.Exams, 900)
	require.NoError(t, f.svc.DeleteSubject(ctx, admin, sub.ID))
	require.NoError(t, f.svc.DeleteGrade(ctx, admin, g.ID))
}

func TestAssignTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requireCode(t, f.svc.AssignTeacher(ctx, teacher, teacher.ID, []int64{10}, []int64{21}), apperr.Forbidden)
	requireCode(t, f.svc.AssignTeacher(ctx, admin, student.ID, []int64{10}, nil), apperr.Validation)
	requireCode(t, f.svc.AssignTeacher(ctx, admin, teacher.ID, []int64{10, 77}, nil), apperr.NotFound)

	require.NoError(t, f.svc.AssignTeacher(ctx, admin, teacher.ID, []int64{10, 10}, []int64{21, 20}))
	require.Equal(t, models.Assignments{SubjectIDs: []int64{10}, GradeIDs: []int64{20, 21}}, f.store.Teaching[teacher.ID])

	f.store.FailAssignments = true
	requireCode(t, f.svc.AssignTeacher(ctx, admin, teacher.ID, nil, nil), apperr.Internal)
	require.Equal(t, []int64{20, 21}, f.store.Teaching[teacher.ID].GradeIDs)

	grades, err := f.svc.UserGrades(ctx, f.store.Users[teacher.ID])
	require.NoError(t, err)
	require.Len(t, grades, 2)
}

func TestEnrollStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnrollStudent(ctx, teacher, student.ID, 20))
	requireCode(t, f.svc.EnrollStudent(ctx, teacher, student.ID, 21), apperr.Forbidden)
	requireCode(t, f.svc.EnrollStudent(ctx, student, student.ID, 20), apperr.Forbidden)
	requireCode(t, f.svc.EnrollStudent(ctx, admin, teacher.ID, 20), apperr.Validation)
	require.NoError(t, f.svc.EnrollStudent(ctx, admin, student.ID, 21))
	require.NoError(t, f.svc.EnrollStudent(ctx, admin, student.ID, 21))
	require.Equal(t, []int64{20, 21}, f.store.Enrolled[student.ID])

	students, err := f.svc.StudentsInGrade(ctx, 21)
	require.NoError(t, err)
	require.Len(t, students, 1)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Notifications[7] = models.Notification{ID: 7, RecipientID: student.ID, Title: "Exam Completed"}
	f.store.Notifications[8] = models.Notification{ID: 8, RecipientID: teacher.ID, Title: "Exam Submission"}

	p, err := f.svc.Notifications(ctx, student, true, models.ListOptions{})
	require.NoError(t, err)
	require.Len(t, p.Items, 1)

	_, err = f.svc.MarkNotificationRead(ctx, teacher, 7)
	requireCode(t, err, apperr.Forbidden)
	n, err := f.svc.MarkNotificationRead(ctx, student, 7)
	require.NoError(t, err)
	require.True(t, n.IsRead)

	p, err = f.svc.Notifications(ctx, student, true, models.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, p.Items)
	_, err = f.svc.Notifications(ctx, anonymous, false, models.ListOptions{})
	requireCode(t, err, apperr.Unauthorized)
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Bootstrap(ctx, CreateUserInput{FirstName: "Root", LastName: "Admin", Email: "root@school.test",
		Password: "correct horse", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, models.UserActive, u.Status)
	require.Equal(t, "cli", f.store.Events[len(f.store.Events)-1].Actor)

	_, err = f.svc.Bootstrap(ctx, CreateUserInput{FirstName: "Root", LastName: "Admin", Email: "root@school.test",
		Password: "correct horse", Role: models.RoleAdmin})
	requireCode(t, err, apperr.AlreadyExists)

	_, err = f.svc.Bootstrap(ctx, CreateUserInput{FirstName: "Weak", LastName: "Pass", Email: "weak@school.test",
		Password: "short", Role: models.RoleAdmin})
	requireCode(t, err, apperr.Validation)
}
