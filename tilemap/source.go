package tilemap

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"io"
	"strings"
	"text/template"
	"unicode"
)

const perLine = 16

var sourceTemplate = template.Must(template.New("").Parse(`// Code generated by metamap; DO NOT EDIT.

package {{ .Package }}

import "github.com/bodgit/metamap/tilemap"

const (
	{{ .Name }}Width  = {{ .Width }}
	{{ .Name }}Height = {{ .Height }}
)

// {{ .Name }} is the compiled {{ .Width }}x{{ .Height }} map.
var {{ .Name }} = tilemap.MustNew({{ .Name }}Width, {{ .Name }}Height, []uint16{
{{- range .Rows }}
	{{ . }}
{{- end }}
})
`))

// Identifier turns an arbitrary file name stem into an exported Go
// identifier, for example "metro-metropolis" becomes "MetroMetropolis".
func Identifier(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upper {
				r = unicode.ToUpper(r)
				upper = false
			}
			sb.WriteRune(r)
		default:
			upper = true
		}
	}
	id := sb.String()
	if id == "" || !unicode.IsLetter([]rune(id)[0]) {
		id = "Map" + id
	}
	return id
}

// PackageName turns a directory name into a Go package name, for example
// "World-1" becomes "world1". A name with no letters becomes "maps" and a
// keyword gets a trailing underscore.
func PackageName(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	pkg := sb.String()
	switch {
	case pkg == "":
		return "maps"
	case !unicode.IsLetter([]rune(pkg)[0]):
		return "maps" + pkg
	case token.IsKeyword(pkg):
		return pkg + "_"
	}
	return pkg
}

// WriteGo writes m to w as a Go source file in package pkg declaring a
// variable called name and its dimensions as constants.
func WriteGo(w io.Writer, m *Map, pkg, name string) error {
	if !token.IsIdentifier(pkg) {
		return fmt.Errorf("tilemap: invalid package name %q", pkg)
	}
	if !token.IsIdentifier(name) || !token.IsExported(name) {
		return fmt.Errorf("tilemap: invalid variable name %q", name)
	}

	var rows []string
	for i := 0; i < len(m.tiles); i += perLine {
		var sb strings.Builder
		for j := i; j < i+perLine && j < len(m.tiles); j++ {
			fmt.Fprintf(&sb, "%d, ", m.tiles[j])
		}
		rows = append(rows, strings.TrimSpace(sb.String()))
	}

	b := new(bytes.Buffer)
	if err := sourceTemplate.Execute(b, struct {
		Package, Name string
		Width, Height uint16
		Rows          []string
	}{pkg, name, m.width, m.height, rows}); err != nil {
		return err
	}

	src, err := format.Source(b.Bytes())
	if err != nil {
		return err
	}

	_, err = w.Write(src)
	return err
}
