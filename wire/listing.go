package wire

type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

type Entry struct {
	Name string
	Kind Kind
}

// ListingLines renders a directory listing in enumerator order. Files are only
// rendered when showFiles is set.
func ListingLines(entries []Entry, showFiles bool) []string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch entry.Kind {
		case KindDirectory:
			lines = append(lines, "Directory: "+entry.Name)
		case KindFile:
			if showFiles {
				lines = append(lines, "File: "+entry.Name)
			}
		}
	}
	return lines
}
