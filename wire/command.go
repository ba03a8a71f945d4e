package wire

import "strings"

type Verb uint8

const (
	VerbUnknown Verb = iota
	VerbList
	VerbDownload
	VerbExit
)

func (v Verb) String() string {
	switch v {
	case VerbList:
		return "list"
	case VerbDownload:
		return "download"
	case VerbExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Command is a single parsed request line.
type Command struct {
	Verb    Verb
	Path    string
	HasPath bool
	Raw     string
}

// ParseCommand splits a request line into its verb and optional path. The path is
// everything after the first space, kept verbatim so names with spaces survive.
func ParseCommand(line string) Command {
	line = strings.TrimSuffix(line, "\r")
	cmd := Command{Raw: line}

	verb, rest, hasPath := strings.Cut(line, " ")
	switch verb {
	case "list":
		cmd.Verb = VerbList
	case "download":
		cmd.Verb = VerbDownload
	case "exit":
		if !hasPath {
			cmd.Verb = VerbExit
		}
		return cmd
	default:
		return cmd
	}

	cmd.Path = rest
	cmd.HasPath = hasPath
	return cmd
}
