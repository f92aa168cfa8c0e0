package format

import (
	"fmt"
	"text/template"
	"time"

	"github.com/manifoldco/promptui"
)

var FuncMap = template.FuncMap{
	"bufferToString": func(b []byte) string { return string(b) },
	"shorten": func(s string) string {
		if len(s) < 8 {
			return s
		}
		return s[0:8]
	},
	"since": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return time.Since(t).Round(time.Second).String()
	},
	"display": func(v interface{}) string { return fmt.Sprint(v) },
}

func ParseTemplate(body string) *template.Template {
	tpl, err := template.New("").Funcs(promptui.FuncMap).Funcs(FuncMap).Parse(body)
	if err != nil {
		panic(err)
	}
	return tpl
}

var TableTemplate = `• {{ "Table" | faint }} {{ .ID | green | bold }} {{ "collections:" | faint }} {{ .Collections }}
`

var CollectionTemplate = `  • {{ "Collection" | faint }} {{ .ID | green }} {{ "tag:" | faint }} {{ .Tag | cyan }} {{ "items:" | faint }} {{ .Items }}
`

var ItemTemplate = `    {{ .Name | bold }} {{ "=" | faint }} {{ .Value }}
`

var WarnTemplate = `• {{ .ID | green | bold }}
  {{ "Target:"   | faint }} {{ .Target }}
  {{ "Issuer:"   | faint }} {{ .Issuer }}
  {{ "Server:"   | faint }} {{ .Server }}
  {{ "Reason:"   | faint }} {{ .Reason }}
  {{ "Issued:"   | faint }} {{ .Time.UtcIssued | since }} ago
  {{ "Expired:"  | faint }} {{ .Time.IsExpired }}
  {{ "Logs:"     | faint }} {{ len .Logs }}
`
