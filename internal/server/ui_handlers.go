package server

import (
	"html/template"
	"log/slog"
	"net/http"
)

var jobListTemplate = template.Must(template.New("jobs").Funcs(template.FuncMap{
	"shortID": func(id string) string {
		if len(id) > 8 {
			return id[:8]
		}
		return id
	},
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>saltcalc jobs</title></head>
<body>
<h1>Dosing jobs</h1>
{{if .}}
<table>
<tr><th>Job</th><th>State</th><th>Table</th><th>Targets</th><th>Strategy</th><th>Iterations</th><th>Error</th><th>Started</th></tr>
{{range .}}
<tr>
<td><a href="/api/v1/jobs/{{.ID}}/report">{{shortID .ID}}</a></td>
<td>{{.State}}</td>
<td>{{.Config.TablePath}}</td>
<td>{{.Config.TargetsPath}}</td>
<td>{{.Config.Strategy}}</td>
<td>{{.Iterations}}</td>
<td>{{printf "%.4g" .BestError}}{{if .Error}} ({{.Error}}){{end}}</td>
<td>{{.StartTime.Format "2006-01-02 15:04:05"}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No jobs yet. Submit one with POST /api/v1/jobs.</p>
{{end}}
</body>
</html>
`))

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := jobListTemplate.Execute(w, s.jobManager.ListJobs()); err != nil {
		slog.Error("Failed to render page", "error", err)
	}
}
