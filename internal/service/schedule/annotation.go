package schedule

import (
	"strings"

	"github.com/robfig/cron/v3"

	"model-publisher/internal/domain"
)

// Annotation grammar. A schedule annotation has five or six tokens:
//
//	# schedule <cron> <materialize|report> <connection> [<argument>]
//
// Tokens are separated by whitespace; a double-quoted token may contain
// spaces, so a five-field cron expression can be written as one token.
// The sixth token is reserved and passed to the executor unchanged; when
// absent the argument is empty.
const (
	annotationMarker    = "#"
	annotationKeyword   = "schedule"
	annotationMinTokens = 5
	annotationMaxTokens = 6
)

// Spec is a parsed schedule annotation.
type Spec struct {
	Cron           string
	NormalizedCron string
	Action         domain.ScheduleAction
	Connection     string
	Argument       string
}

// IsScheduleAnnotation reports whether text is meant as a schedule annotation,
// whether or not it is well formed.
func IsScheduleAnnotation(text string) bool {
	fields := strings.Fields(text)
	return len(fields) >= 2 && fields[0] == annotationMarker && fields[1] == annotationKeyword
}

// ParseAnnotation parses one schedule annotation.
func ParseAnnotation(text string) (Spec, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return Spec{}, err
	}
	if len(tokens) < annotationMinTokens || len(tokens) > annotationMaxTokens {
		return Spec{}, domain.ErrValidation("schedule annotation needs %d or %d tokens, got %d: %q",
			annotationMinTokens, annotationMaxTokens, len(tokens), text)
	}
	if tokens[0] != annotationMarker || tokens[1] != annotationKeyword {
		return Spec{}, domain.ErrValidation("not a schedule annotation: %q", text)
	}

	spec := Spec{
		Cron:       tokens[2],
		Action:     domain.ScheduleAction(tokens[3]),
		Connection: tokens[4],
	}
	if len(tokens) == annotationMaxTokens {
		spec.Argument = tokens[5]
	}
	switch spec.Action {
	case domain.ScheduleActionMaterialize, domain.ScheduleActionReport:
	default:
		return Spec{}, domain.ErrValidation("unknown schedule action %q", tokens[3])
	}

	spec.NormalizedCron = NormalizeCron(spec.Cron)
	if _, err := cron.ParseStandard(spec.NormalizedCron); err != nil {
		return Spec{}, domain.ErrValidation("invalid cron expression %q: %v", spec.Cron, err)
	}
	return spec, nil
}

// tokenize splits text on whitespace, keeping double-quoted runs together.
func tokenize(text string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inQuote bool
		quoted  bool // current token was quoted, so it is kept even when empty
	)

	flush := func() {
		if current.Len() > 0 || quoted {
			tokens = append(tokens, current.String())
		}
		current.Reset()
		quoted = false
	}

	for _, r := range text {
		switch {
		case r == '"':
			inQuote = !inQuote
			quoted = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, domain.ErrValidation("unterminated quote in schedule annotation: %q", text)
	}
	flush()
	return tokens, nil
}
