package mtctl

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind identifies which of the five controller commands a parsed Command
// represents.
type Kind int

const (
	KindClear Kind = iota
	KindReset
	KindTrace
	KindUntrace
	KindSave
)

func (k Kind) String() string {
	switch k {
	case KindClear:
		return "clear"
	case KindReset:
		return "reset"
	case KindTrace:
		return "trace"
	case KindUntrace:
		return "untrace"
	case KindSave:
		return "save"
	default:
		return "unknown"
	}
}

// Command is a single parsed controller command:
//
//	command  := "clear" | "reset" | traceCmd | "save" path
//	traceCmd := ("trace"|"untrace") [option] target
//	option   := "count" | "all"
//	target   := classPattern "#" methodPattern [ "[" paramList "]" ]
//	         |  classPattern
//	paramList:= int ("," int)*
type Command struct {
	Kind Kind

	CountOnly bool // option == "count"; option == "all" or absent means false

	ClassPattern  string
	MethodPattern string // "" for a bare class-pattern target
	TracedParams  []int

	SavePath string
}

// ConfigError reports invalid command syntax or a semantically impossible
// target, the two cases spec's error model groups as "configuration error":
// reported as a one-line warning, with no state change.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// Parse parses a single command line per the grammar above. Whitespace
// between tokens is insignificant; an empty line is rejected, as is any
// token sequence the grammar doesn't recognize.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, &ConfigError{Reason: "empty command"}
	}

	switch fields[0] {
	case "clear":
		if len(fields) != 1 {
			return Command{}, &ConfigError{Reason: "clear takes no arguments"}
		}
		return Command{Kind: KindClear}, nil

	case "reset":
		if len(fields) != 1 {
			return Command{}, &ConfigError{Reason: "reset takes no arguments"}
		}
		return Command{Kind: KindReset}, nil

	case "save":
		if len(fields) != 2 {
			return Command{}, &ConfigError{Reason: "save requires exactly one path argument"}
		}
		path := fields[1]
		if !filepath.IsAbs(path) {
			return Command{}, &ConfigError{Reason: fmt.Sprintf("save path %q must be absolute", path)}
		}
		return Command{Kind: KindSave, SavePath: path}, nil

	case "trace", "untrace":
		return parseTraceCommand(fields)

	default:
		return Command{}, &ConfigError{Reason: fmt.Sprintf("unrecognized command %q", fields[0])}
	}
}

func parseTraceCommand(fields []string) (Command, error) {
	kind := KindTrace
	if fields[0] == "untrace" {
		kind = KindUntrace
	}

	rest := fields[1:]

	var countOnly bool
	if len(rest) > 0 && (rest[0] == "count" || rest[0] == "all") {
		countOnly = rest[0] == "count"
		rest = rest[1:]
	}

	if len(rest) != 1 {
		return Command{}, &ConfigError{Reason: fmt.Sprintf("%s requires exactly one target", fields[0])}
	}

	class, method, params, err := parseTarget(rest[0])
	if err != nil {
		return Command{}, err
	}

	if kind == KindTrace && class == "*" && method == "" {
		return Command{}, &ConfigError{Reason: "trace * would instrument every loaded class; narrow the target"}
	}

	return Command{
		Kind:          kind,
		CountOnly:     countOnly,
		ClassPattern:  class,
		MethodPattern: method,
		TracedParams:  params,
	}, nil
}

// parseTarget splits "classPattern#methodPattern[0,2]" (or the bare
// classPattern form) into its components.
func parseTarget(target string) (class, method string, params []int, err error) {
	base := target
	var paramsPart string
	hasParamList := false

	if idx := strings.IndexByte(target, '['); idx >= 0 {
		if !strings.HasSuffix(target, "]") {
			return "", "", nil, &ConfigError{Reason: fmt.Sprintf("malformed parameter list in %q", target)}
		}
		paramsPart = target[idx+1 : len(target)-1]
		base = target[:idx]
		hasParamList = true
	}

	if hasParamList && paramsPart != "" {
		for _, tok := range strings.Split(paramsPart, ",") {
			n, convErr := strconv.Atoi(strings.TrimSpace(tok))
			if convErr != nil {
				return "", "", nil, &ConfigError{Reason: fmt.Sprintf("invalid parameter index %q", tok)}
			}
			params = append(params, n)
		}
	}

	if base == "" {
		return "", "", nil, &ConfigError{Reason: "empty target"}
	}

	if idx := strings.IndexByte(base, '#'); idx >= 0 {
		class, method = base[:idx], base[idx+1:]
		if class == "" {
			return "", "", nil, &ConfigError{Reason: fmt.Sprintf("empty class pattern in %q", target)}
		}
		return class, method, params, nil
	}

	return base, "", params, nil
}
