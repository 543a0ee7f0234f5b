package handlers

import (
	"fmt"
	"html/template"

	"github.com/gin-contrib/multitemplate"
)

const layoutHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}} · mcsh</title>
<style>body{font-family:sans-serif;margin:2em}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}.error{color:#b00}</style>
</head>
<body>
<nav><a href="/admin/dashboard">Dashboard</a> | <a href="/admin/question_stats">Question statistics</a></nav>
<h1>{{.Title}}</h1>
{{with .Error}}<p class="error">{{.}}</p>{{end}}
{{template "content" .}}
</body>
</html>`

const dashboardHTML = `{{define "content"}}{{with .Stats}}
<table>
<tr><th>Users</th><td>{{.Users}}</td></tr>
<tr><th>Exams</th><td>{{.Exams}} ({{.PublishedExams}} published)</td></tr>
<tr><th>Attempts</th><td>{{.AttemptsTaken}} ({{.AttemptsFinished}} finished)</td></tr>
<tr><th>Import failures</th><td>{{.IngestionErrors}}</td></tr>
</table>{{end}}
<h2>Recent activity</h2>
<ul>{{range .RecentEvents}}
<li>{{.Timestamp.Format "2006-01-02 15:04"}} {{.Actor}} {{.Action}} {{.Target}}: {{.Notes}}</li>{{else}}
<li>No activity yet.</li>{{end}}
</ul>{{end}}`

const questionStatsHTML = `{{define "content"}}
<form method="get"><input name="search" value="{{.SearchQuery}}" placeholder="Search question text"><button>Search</button></form>
<table>
<tr><th>Exam</th><th>#</th><th>Question</th><th>Type</th><th>Answered</th><th>Correct</th><th>Rate</th></tr>
{{range .Stats}}<tr><td>{{.ExamTitle}}</td><td>{{.QuestionNumber}}</td><td>{{.Text}}</td><td>{{.Type}}</td>
<td>{{.TimesAnswered}}</td><td>{{.CorrectCount}}</td><td>{{rate .CorrectCount .TimesAnswered}}</td></tr>
{{end}}</table>{{end}}`

const playgroundHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/graphiql@3/graphiql.min.css">
</head>
<body style="margin:0">
<div id="graphiql" style="height:100vh"></div>
<script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
<script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
<script crossorigin src="https://unpkg.com/graphiql@3/graphiql.min.js"></script>
<script>
const fetcher = GraphiQL.createFetcher({url: {{.Endpoint}}});
ReactDOM.createRoot(document.getElementById('graphiql')).render(React.createElement(GraphiQL, {fetcher}));
</script>
</body>
</html>`

var templateFuncs = template.FuncMap{
	"rate": func(correct, answered int) string {
		if answered == 0 {
			return "-"
		}
		return fmt.Sprintf("%.0f%%", float64(correct)*100/float64(answered))
	},
}

// NewRenderer builds the HTML templates served by the admin pages and the
// playground.
func NewRenderer() multitemplate.Renderer {
	r := multitemplate.NewRenderer()
	r.AddFromStringsFuncs("admin_dashboard", templateFuncs, layoutHTML, dashboardHTML)
	r.AddFromStringsFuncs("admin_question_stats", templateFuncs, layoutHTML, questionStatsHTML)
	r.AddFromString("playground", playgroundHTML)
	return r
}
