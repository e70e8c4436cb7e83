package handler

import "html/template"

const (
	pageSuccess = "success.html"
	pageFailure = "failure.html"
)

const pagesSource = `
{{define "success.html"}}<!DOCTYPE html>
<html>
  <head>
    <title>Authorization Successful</title>
    <style>
      body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
      .success { color: #28a745; }
      .platform { text-transform: capitalize; }
    </style>
  </head>
  <body>
    <h1 class="success">Authorization Successful!</h1>
    <p>You have successfully authorized access to <span class="platform">{{.Platform}}</span>.</p>
    <p>Your CLI application will now continue automatically.</p>
    <p>You can close this window.</p>
    <script>setTimeout(function () { window.close(); }, 3000);</script>
  </body>
</html>{{end}}

{{define "failure.html"}}<!DOCTYPE html>
<html>
  <head>
    <title>Authorization Failed</title>
    <style>
      body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
      .failure { color: #dc3545; }
    </style>
  </head>
  <body>
    <h1 class="failure">Authorization Failed</h1>
    <p>Error: {{.Error}}</p>
    <p>You can close this window.</p>
  </body>
</html>{{end}}
`

// Pages returns the callback result templates for gin's HTML renderer.
func Pages() *template.Template {
	return template.Must(template.New("pages").Parse(pagesSource))
}
