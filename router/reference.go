package router

import (
	"fmt"
	"io"
	"strings"
)

// Documenter is implemented by backends that describe themselves in the
// reference output.
type Documenter interface {
	Doc() string
}

const referenceHeader = `# Router Reference

This is the list of all routers, their backend types, and how you select
between them. The backend is usually chosen by the route table; routers with
a backend setting can be tuned through settings instead.

`

// WriteReference writes a markdown listing of every router in dir, with its
// doc and every backend type registered for it. Backends are built to report
// their capabilities; a type that cannot be built is listed as unavailable.
func WriteReference(w io.Writer, dir *Directory) error {
	var b strings.Builder
	b.WriteString(referenceHeader)

	for _, name := range dir.Instances() {
		r := dir.Instance(name)
		if r == nil {
			continue
		}
		underline(&b, name, '-')
		if doc := strings.TrimSpace(r.Doc()); doc != "" {
			b.WriteString(doc)
			b.WriteString("\n\n")
		}

		for _, typeName := range dir.Registry().AllTypes(name) {
			underline(&b, typeName, '+')
			backend, err := r.Backend(typeName)
			if err != nil {
				fmt.Fprintf(&b, "* **Unavailable**: %v\n\n", err)
				continue
			}
			if d, ok := backend.(Documenter); ok {
				if doc := strings.TrimSpace(d.Doc()); doc != "" {
					b.WriteString(doc)
					b.WriteString("\n\n")
				}
			}
			fmt.Fprintf(&b, "* **Capabilities**: %s\n\n", DescribeCapabilities(backend))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func underline(b *strings.Builder, title string, c byte) {
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(string(c), len(title)))
	b.WriteString("\n\n")
}
