// Package matcher resolves the conversion target for a source file by
// evaluating ordered, case-insensitive rules; the first rule that matches wins.
package matcher

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"audioconv/internal/transcode"
)

// DefaultExtensions is the predicate used by rules that set no pattern.
var DefaultExtensions = []string{".flac", ".wav"}

// ErrPatternConflict reports a rule with more than one pattern form.
var ErrPatternConflict = errors.New("only one of glob, regex, or extensions may be set")

// Patterns holds the pattern forms of a rule as configured. At most one may be
// set.
type Patterns struct {
	Glob       string
	Regex      string
	Extensions []string
}

// Rule is a compiled predicate paired with its conversion target.
type Rule struct {
	Spec    transcode.Spec
	pattern string
	match   func(rel string) bool
}

// Pattern describes the predicate for logs and tables.
func (r Rule) Pattern() string { return r.pattern }

// Compile builds a rule from its pattern forms.
func Compile(p Patterns, spec transcode.Spec) (Rule, error) {
	if spec == nil {
		return Rule{}, errors.New("rule target is required")
	}
	set := 0
	if p.Glob != "" {
		set++
	}
	if p.Regex != "" {
		set++
	}
	if len(p.Extensions) > 0 {
		set++
	}
	switch {
	case set > 1:
		return Rule{}, ErrPatternConflict
	case p.Glob != "":
		return compileGlob(p.Glob, spec)
	case p.Regex != "":
		return compileRegex(p.Regex, spec)
	case len(p.Extensions) > 0:
		return compileExtensions(p.Extensions, spec)
	default:
		return compileExtensions(DefaultExtensions, spec)
	}
}

func compileGlob(glob string, spec transcode.Spec) (Rule, error) {
	pattern := fold(glob)
	if !doublestar.ValidatePattern(pattern) {
		return Rule{}, fmt.Errorf("invalid glob %q", glob)
	}
	baseOnly := !strings.Contains(pattern, "/")
	return Rule{
		Spec:    spec,
		pattern: "glob " + glob,
		match: func(rel string) bool {
			target := fold(rel)
			if baseOnly {
				target = path.Base(target)
			}
			ok, _ := doublestar.Match(pattern, target)
			return ok
		},
	}, nil
}

func compileRegex(expr string, spec transcode.Spec) (Rule, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid regex %q: %w", expr, err)
	}
	return Rule{
		Spec:    spec,
		pattern: "regex " + expr,
		match: func(rel string) bool {
			return re.MatchString(norm.NFC.String(rel))
		},
	}, nil
}

func compileExtensions(exts []string, spec transcode.Spec) (Rule, error) {
	folded := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			return Rule{}, errors.New("empty extension")
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		folded = append(folded, fold(ext))
	}
	return Rule{
		Spec:    spec,
		pattern: "extensions " + strings.Join(folded, ","),
		match: func(rel string) bool {
			target := fold(rel)
			for _, ext := range folded {
				if strings.HasSuffix(target, ext) {
					return true
				}
			}
			return false
		},
	}, nil
}

// Matcher evaluates rules in configuration order.
type Matcher struct {
	rules []Rule
}

// New returns a matcher over rules. With no rules, a single default rule
// sends .flac and .wav files to the default target.
func New(rules []Rule) *Matcher {
	if len(rules) == 0 {
		def, _ := compileExtensions(DefaultExtensions, transcode.Default())
		rules = []Rule{def}
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Matcher{rules: cp}
}

// Rules returns the effective rules.
func (m *Matcher) Rules() []Rule {
	cp := make([]Rule, len(m.rules))
	copy(cp, m.rules)
	return cp
}

// Match returns the target of the first rule matching rel, a path relative to
// the input root in either slash or OS form.
func (m *Matcher) Match(rel string) (transcode.Spec, bool) {
	rel = filepath.ToSlash(rel)
	for _, rule := range m.rules {
		if rule.match(rel) {
			return rule.Spec, true
		}
	}
	return nil, false
}

// fold normalizes to NFC and applies Unicode case folding so composed and
// decomposed names compare equal regardless of case.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
