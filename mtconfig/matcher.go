package mtconfig

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mtrace-dev/mtrace"
)

// ClassInfo is the minimal class reflection the matcher needs: a name and
// the fully-qualified names of its methods. It is the kind of thing a host
// runtime's retransformation facility (an external collaborator, see
// spec.md §6) would hand back when asked for a loaded class's shape; mtxform
// implements it against whatever concrete reflection type the host provides.
type ClassInfo interface {
	ClassName() string
	Methods() []mtrace.MethodFQName
}

// Matcher tests whether a method, or a class that might contain matching
// methods, satisfies a trace request's target pattern. Class and method
// patterns are each matched independently ("per-component glob"): * is a
// multi-character wildcard, everything else is literal.
type Matcher struct {
	classPattern  string
	methodPattern string // "" means "all methods" (a bare classPattern target)
	classRe       *regexp.Regexp
	methodRe      *regexp.Regexp
}

// NewMatcher compiles a matcher for the given class and method glob
// patterns. An empty methodPattern matches every method in a matching
// class.
func NewMatcher(classPattern, methodPattern string) *Matcher {
	return &Matcher{
		classPattern:  classPattern,
		methodPattern: methodPattern,
		classRe:       compileGlob(classPattern),
		methodRe:      compileGlob(methodPattern),
	}
}

// String renders the matcher's original target syntax, for logs and popups.
func (m *Matcher) String() string {
	if m.methodPattern == "" {
		return m.classPattern
	}
	return fmt.Sprintf("%s#%s", m.classPattern, m.methodPattern)
}

// Matches reports whether the given method fully-qualified name satisfies
// this matcher.
func (m *Matcher) Matches(fq mtrace.MethodFQName) bool {
	if !m.classRe.MatchString(fq.Class) {
		return false
	}
	if m.methodPattern == "" {
		return true
	}
	return m.methodRe.MatchString(fq.Method)
}

// MightMatchMethodInClass is a cheap, conservative pre-check using only the
// class name, performed before a class's bytecode (or reflection) is loaded.
// A false result guarantees no method in the class can match; a true result
// is not a guarantee, since the method pattern hasn't been consulted yet.
func (m *Matcher) MightMatchMethodInClass(className string) bool {
	return m.classRe.MatchString(className)
}

// MatchesMethodInClass reports whether any method of the given class
// reflection is matched by this matcher. Used once a class's actual method
// list is available, to decide whether retransforming it is worthwhile.
func (m *Matcher) MatchesMethodInClass(ci ClassInfo) bool {
	if !m.classRe.MatchString(ci.ClassName()) {
		return false
	}
	if m.methodPattern == "" {
		return len(ci.Methods()) > 0
	}
	for _, fq := range ci.Methods() {
		if m.methodRe.MatchString(fq.Method) {
			return true
		}
	}
	return false
}

// compileGlob turns a glob pattern (where * is a multi-character wildcard)
// into an anchored regexp. An empty pattern compiles to a regexp matching
// only the empty string; callers that treat "" as "match everything" should
// special-case it before calling MatchString, as Matches and
// MatchesMethodInClass do for methodPattern.
func compileGlob(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}
