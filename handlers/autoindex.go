package handlers

import (
	"bytes"
	"html/template"
	"os"
	"strings"
)

var autoindexPage = template.Must(template.New("autoindex").Parse(
	`<html>
<head><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1>
<hr>
<pre>{{range .Entries}}<a href="{{.Href}}">{{.Name}}</a>
{{end}}</pre>
<hr>
</body>
</html>
`))

type autoindexEntry struct {
	Name string
	Href string
}

func renderAutoindex(uriPath string, entries []os.DirEntry) ([]byte, error) {
	base := uriPath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	page := struct {
		Path    string
		Entries []autoindexEntry
	}{Path: base}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		page.Entries = append(page.Entries, autoindexEntry{
			Name: name,
			Href: base + name,
		})
	}

	var rendered bytes.Buffer
	if err := autoindexPage.Execute(&rendered, page); err != nil {
		return nil, err
	}
	return rendered.Bytes(), nil
}
