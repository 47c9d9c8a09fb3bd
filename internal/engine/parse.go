package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type declKind int

const (
	declImport declKind = iota
	declSource
	declView
	declQuery
	declRun
)

// decl is one parsed line of model text.
type decl struct {
	kind        declKind
	line        int
	name        string
	connection  string
	table       string // source: table('...')
	sql         string // source: sql("...") or view body
	ref         queryRef
	path        string // import
	annotations []string
}

// queryRef addresses a source, optionally through one of its views.
type queryRef struct {
	source string
	view   string
	limit  int
}

var (
	importPattern = regexp.MustCompile(`^import\s+"([^"]+)"$`)
	sourcePattern = regexp.MustCompile(`^source:\s*([A-Za-z_]\w*)\s+is\s+([A-Za-z_]\w*)\.(table|sql)\(\s*(?:'([^']*)'|"([^"]*)")\s*\)$`)
	viewPattern   = regexp.MustCompile(`^view:\s*([A-Za-z_]\w*)\s+is\s+(.+)$`)
	queryPattern  = regexp.MustCompile(`^query:\s*([A-Za-z_]\w*)\s+is\s+(.+)$`)
	runPattern    = regexp.MustCompile(`^run:\s*(.+)$`)
	refPattern    = regexp.MustCompile(`^([A-Za-z_]\w*)(?:\s*->\s*([A-Za-z_]\w*))?(?:\s+limit\s+(\d+))?$`)
)

// parse splits model text into declarations. Lines starting with # are
// annotations on the next declaration; lines starting with -- or // are
// comments. Every malformed line is reported.
func parse(text string) ([]decl, []string) {
	var (
		decls    []decl
		problems []string
		pending  []string
	)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		switch {
		case line == "", strings.HasPrefix(line, "--"), strings.HasPrefix(line, "//"):
			continue
		case strings.HasPrefix(line, "#"):
			pending = append(pending, line)
			continue
		}

		d, err := parseLine(line)
		if err != nil {
			problems = append(problems, fmt.Sprintf("line %d: %v", lineNo, err))
			pending = nil
			continue
		}
		d.line = lineNo
		if d.kind == declSource || d.kind == declView || d.kind == declQuery {
			d.annotations = pending
		}
		pending = nil
		decls = append(decls, d)
	}
	return decls, problems
}

func parseLine(line string) (decl, error) {
	if m := importPattern.FindStringSubmatch(line); m != nil {
		return decl{kind: declImport, path: m[1]}, nil
	}
	if m := sourcePattern.FindStringSubmatch(line); m != nil {
		d := decl{kind: declSource, name: m[1], connection: m[2]}
		arg := m[4] + m[5]
		if arg == "" {
			return decl{}, fmt.Errorf("source %s: empty %s argument", m[1], m[3])
		}
		if m[3] == "table" {
			d.table = arg
		} else {
			d.sql = arg
		}
		return d, nil
	}
	if m := viewPattern.FindStringSubmatch(line); m != nil {
		return decl{kind: declView, name: m[1], sql: strings.TrimSpace(m[2])}, nil
	}
	if m := queryPattern.FindStringSubmatch(line); m != nil {
		ref, err := parseRef(m[2])
		if err != nil {
			return decl{}, fmt.Errorf("query %s: %w", m[1], err)
		}
		return decl{kind: declQuery, name: m[1], ref: ref}, nil
	}
	if m := runPattern.FindStringSubmatch(line); m != nil {
		ref, err := parseRef(m[1])
		if err != nil {
			return decl{}, fmt.Errorf("run: %w", err)
		}
		return decl{kind: declRun, ref: ref}, nil
	}
	return decl{}, fmt.Errorf("unrecognised statement %q", line)
}

// parseRef parses "<source> [-> <view>] [limit N]".
func parseRef(s string) (queryRef, error) {
	m := refPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return queryRef{}, fmt.Errorf("invalid query expression %q", s)
	}
	ref := queryRef{source: m[1], view: m[2]}
	if m[3] != "" {
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return queryRef{}, fmt.Errorf("invalid limit %q", m[3])
		}
		ref.limit = n
	}
	return ref, nil
}
