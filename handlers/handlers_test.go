package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mcsh-server/auth"
	"mcsh-server/directory"
	"mcsh-server/exam"
	"mcsh-server/graph"
	"mcsh-server/ingestion"
	"mcsh-server/memstore"
	"mcsh-server/models"
	"mcsh-server/policy"
)

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	store  *memstore.Store
	tokens *auth.TokenManager
	router *gin.Engine
}

type downStore struct{ *memstore.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newFixture(t *testing.T, playground bool) *fixture {
	t.Helper()
	st := memstore.New()
	hasher := auth.Hasher{Cost: bcrypt.MinCost}
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	st.Users[1] = models.User{ID: 1, FirstName: "Ada", LastName: "Admin", Email: "admin@school.test",
		PasswordHash: hash, Role: models.RoleAdmin, Status: models.UserActive}
	st.Users[2] = models.User{ID: 2, FirstName: "Tom", LastName: "Teacher", Email: "tom@school.test",
		PasswordHash: hash, Role: models.RoleTeacher, Status: models.UserActive}
	st.Users[4] = models.User{ID: 4, FirstName: "Sam", LastName: "Student", Email: "sam@school.test",
		PasswordHash: hash, Role: models.RoleStudent, Status: models.UserActive}
	st.Grades[20] = models.Grade{ID: 20, Name: "Grade 7", AcademicYear: "2026", IsActive: true}
	st.Subjects[10] = models.Subject{ID: 10, Name: "Maths", Code: "MATH7", GradeID: 20, IsActive: true}
	st.Teaching[2] = models.Assignments{SubjectIDs: []int64{10}, GradeIDs: []int64{20}}
	st.Enrolled[4] = []int64{20}

	log := zap.NewNop()
	reg := prometheus.NewRegistry()
	pol := policy.New(st)
	tokens := auth.NewTokenManager("handler-test-key", "mcsh-test", time.Hour)
	dir := directory.NewService(st, pol, tokens, hasher, log)
	exams := exam.NewService(st, pol, log, exam.NewMetrics(reg))
	return &fixture{
		store:  st,
		tokens: tokens,
		router: NewRouter(RouterConfig{
			Schema:      graph.NewSchema(graph.NewResolver(exams, dir, log)),
			Tokens:      tokens,
			Store:       st,
			Importer:    ingestion.NewImporter(st, pol, log),
			Gatherer:    reg,
			Log:         log,
			Playground:  playground,
			CORSOrigins: []string{"*"},
		}),
	}
}

func (f *fixture) token(t *testing.T, id int64) string {
	t.Helper()
	tok, _, err := f.tokens.Issue(f.store.Users[id])
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) graphql(t *testing.T, token, query string, vars map[string]any) map[string]any {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)
	w := f.do(http.MethodPost, "/graphql", token, body)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Data   map[string]any `json:"data"`
		Errors []any          `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Empty(t, out.Errors)
	return out.Data
}

func TestGraphQLLoginThenMe(t *testing.T) {
	f := newFixture(t, false)

	data := f.graphql(t, "", `mutation($e: String!, $p: String!) {
		login(email: $e, password: $p) { __typename ... on AuthPayload { token } ... on Error { code } }
	}`, map[string]any{"e": "tom@school.test", "p": "correct horse"})
	login := data["login"].(map[string]any)
	require.Equal(t, "AuthPayload", login["__typename"])
	tok := login["token"].(string)

	me := `{ me { __typename ... on User { email role } ... on Error { code } } }`
	data = f.graphql(t, tok, me, nil)
	require.Equal(t, map[string]any{"__typename": "User", "email": "tom@school.test", "role": "TEACHER"}, data["me"])

	// a bad token is treated as no token
	data = f.graphql(t, "not-a-token", me, nil)
	require.Equal(t, map[string]any{"__typename": "Error", "code": "UNAUTHORIZED"}, data["me"])
}

func TestGraphQLMalformedRequest(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodPost, "/graphql", "", []byte(`{"variables": {}}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/graphql", "", []byte(`{"query": "{ nope }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"errors"`)
}

func TestPlaygroundIsConfigGated(t *testing.T) {
	w := newFixture(t, false).do(http.MethodGet, "/playground", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = newFixture(t, true).do(http.MethodGet, "/playground", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "graphiql")
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	r := gin.New()
	r.GET("/healthz", Health(downStore{f.store}, zap.NewNop()))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetrics(t *testing.T) {
	w := newFixture(t, false).do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "mcsh_exam_attempts_started_total 0")
}

func TestAdminPagesNeedStaff(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/admin/dashboard", "/admin/question_stats", "/admin/error_logs"} {
		require.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, path, "", nil).Code, path)
		require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, path, f.token(t, 4), nil).Code, path)
	}
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin/error_logs", f.token(t, 2), nil).Code)
}

func TestAdminDashboard(t *testing.T) {
	f := newFixture(t, false)
	f.store.LogAdminEvent(context.Background(), "user:1", "create_grade", "Grade 7", "created")

	w := f.do(http.MethodGet, "/admin/dashboard", f.token(t, 2), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<th>Users</th><td>3</td>")
	assert.Contains(t, body, "create_grade")
}

const bundle = `subject: MATH7
grade: Grade 7
title: Fractions quiz
duration: 30
questions:
  - text: What is 1/2 + 1/4?
    type: MULTIPLE_CHOICE
    options: ["3/4", "2/6"]
    answer: "3/4"
`

func TestImportAndStats(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/admin/import?file=fractions.yaml", f.token(t, 2), []byte(bundle))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "DRAFT", created["status"])
	require.Len(t, f.store.Exams, 1)

	w = f.do(http.MethodGet, "/admin/question_stats?search=1/4", f.token(t, 1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fractions quiz")

	w = f.do(http.MethodGet, "/admin/question_stats?exam_id=abc", f.token(t, 1), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportValidationFailure(t *testing.T) {
	f := newFixture(t, false)
	bad := strings.Replace(bundle, `answer: "3/4"`, `answer: "5/4"`, 1)

	w := f.do(http.MethodPost, "/admin/import?file=bad.yaml", f.token(t, 1), []byte(bad))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var out struct {
		Code     string              `json:"code"`
		Problems []ingestion.Problem `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "VALIDATION_ERROR", out.Code)
	require.Len(t, out.Problems, 1)
	assert.Equal(t, "correctAnswer", out.Problems[0].Field)
	assert.Empty(t, f.store.Exams)

	w = f.do(http.MethodGet, "/admin/error_logs?source=ingestion", f.token(t, 1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		ErrorLogs []models.ErrorLog `json:"error_logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs.ErrorLogs, 1)
	assert.Equal(t, "bad.yaml", logs.ErrorLogs[0].FilePath)
}

func TestImportForbiddenForUnassignedTeacher(t *testing.T) {
	f := newFixture(t, false)
	f.store.Teaching[2] = models.Assignments{}
	w := f.do(http.MethodPost, "/admin/import", f.token(t, 2), []byte(bundle))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, f.store.Exams)
}
