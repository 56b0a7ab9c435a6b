package handlers

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/template"
)

var views = template.NewRegistry()

type confirmationPage struct {
	Code      string
	OwnerName string
	EventName string
	EventDate string
	Location  string
	Duplicate bool
}

type problemPage struct {
	Title   string
	Message string
	Pending bool
	Ref     string
}

const layoutView = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PartyFlow - {{template "title" .}}</title>
<style>
body{font-family:system-ui,sans-serif;background:#14101f;color:#f5f3ff;display:flex;justify-content:center;padding:3rem 1rem}
.card{max-width:28rem;width:100%;background:#241c3a;border-radius:1rem;padding:2rem;text-align:center}
.code{font-size:1.6rem;letter-spacing:.15rem;font-weight:700;margin:1rem 0}
.muted{color:#b9b1d6}
</style>
</head>
<body><div class="card">{{template "body" .}}</div></body>
</html>{{end}}`

const confirmationView = `{{define "title"}}Ticket confirmed{{end}}
{{define "body"}}
<h1>🎉 You're in, {{.OwnerName}}!</h1>
{{if .EventName}}<p><strong>{{.EventName}}</strong></p>
<p class="muted">📅 {{.EventDate}} · 📍 {{.Location}}</p>{{end}}
<p class="code">{{.Code}}</p>
<p class="muted">{{if .Duplicate}}This ticket was already issued for your payment.{{else}}Your ticket is on its way to your chat.{{end}}</p>
{{end}}`

const problemView = `{{define "title"}}{{.Title}}{{end}}
{{define "body"}}
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Pending}}<p class="muted">Refresh this page once the payment is complete.</p>{{end}}
{{if .Ref}}<p class="muted">Reference: {{.Ref}}</p>{{end}}
{{end}}`

func renderPage(e *core.RequestEvent, code int, view string, data any) error {
	html, err := views.LoadString(layoutView + view + `{{template "layout" .}}`).Render(data)
	if err != nil {
		return apis.NewInternalServerError("Failed to render page", err)
	}
	return e.HTML(code, html)
}
