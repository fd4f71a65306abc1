package manifest

import (
	"bytes"
	"fmt"
	"html/template"

	"modio-repo/db"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"unreachable": func(id int64) bool { return id == db.UnreachableFileID },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>mod.io repository report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; vertical-align: top; }
th { background: #eee; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>mod.io repository report</h1>
<p>Run <code>{{.Meta.RunID}}</code> at {{.Meta.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}:
{{.Meta.Standard}} standard, {{.Meta.Explicit}} explicit, {{.Meta.Malformed}} malformed mods.</p>
{{if .Mods}}
<table>
<tr><th>Mod</th><th>Platform</th><th>File</th><th>Errors</th></tr>
{{range .Mods}}{{$mod := .}}{{range .Files}}
<tr>
<td>{{$mod.Name}} <span class="muted">({{$mod.ID}})</span></td>
<td>{{.Platform}}</td>
<td>{{if .URL}}<a href="{{.URL}}">{{.FileID}}</a>{{else}}{{.FileID}}{{end}}</td>
<td>{{range .Errors}}<div>{{if unreachable .FileID}}<span class="muted">[unreachable]</span> {{end}}{{.Message}}</div>{{else}}<span class="muted">none</span>{{end}}</td>
</tr>
{{else}}
<tr><td>{{$mod.Name}} <span class="muted">({{$mod.ID}})</span></td><td colspan="3" class="muted">no files</td></tr>
{{end}}{{end}}
</table>
{{else}}
<p>No malformed mods.</p>
{{end}}
</body>
</html>
`))

// RenderReport renders the HTML report of malformed mods. mods must have
// their files and errors loaded.
func RenderReport(meta Meta, mods []db.Mod) ([]byte, error) {
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Meta Meta
		Mods []db.Mod
	}{meta, mods})
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
