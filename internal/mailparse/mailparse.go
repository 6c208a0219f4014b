// Package mailparse implements the order-email grammar: the subject names a
// route, the body lists clients, optional observations, and product lines.
//
// The grammar is deliberately forgiving: anything that does not parse
// degrades to a warning so one sloppy line never voids a whole order email.
// Only a client header without a name is a hard error.
package mailparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/delsur/comandero/internal/textnorm"
)

// Issue levels.
const (
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Issue is one parse finding. LineNo is 1-based; 0 when the finding has no
// specific line.
type Issue struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	LineNo  int    `json:"line_no,omitempty"`
}

// ParsedLine is one product request inside a client block.
type ParsedLine struct {
	Seq        int
	Quantity   float64
	UnitRaw    string
	ProductRaw string
	Price      float64
}

// ParsedClient is one client block with its lines.
type ParsedClient struct {
	Name         string
	Observations string
	Lines        []ParsedLine
}

// BodyParse is the outcome of parsing one email body.
type BodyParse struct {
	Clients []ParsedClient
	Issues  []Issue
}

// OK reports whether the parse is usable: at least one client and no hard
// error.
func (r BodyParse) OK() bool {
	if len(r.Clients) == 0 {
		return false
	}
	for _, is := range r.Issues {
		if is.Level == LevelError {
			return false
		}
	}
	return true
}

// Errors returns only the hard-error issues.
func (r BodyParse) Errors() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Level == LevelError {
			out = append(out, is)
		}
	}
	return out
}

var (
	clientRe  = regexp.MustCompile(`(?i)^cliente:\s*(.*)$`)
	obsRe     = regexp.MustCompile(`(?i)^observaciones:\s*(.*)$`)
	productRe = regexp.MustCompile(`^([0-9]+(?:[.,][0-9]+)?)\s+(.+?)\s*-\s*(.+?)\s*-\s*([0-9]+(?:[.,][0-9]+)?)$`)
	// Decorative rows of dashes or similar between client blocks.
	separatorRe = regexp.MustCompile(`^[-=_*~.]+$`)
)

// RouteKey returns the normalized subject used for the exact route lookup.
func RouteKey(subject string) string {
	return textnorm.Norm(subject)
}

// ParseBody scans the body top to bottom with a single-client state machine.
func ParseBody(body string) BodyParse {
	var res BodyParse

	var cur *ParsedClient
	curLineNo := 0
	awaitingObs := false

	flush := func() {
		if cur == nil {
			return
		}
		if len(cur.Lines) == 0 {
			res.Issues = append(res.Issues, Issue{LevelWarning, "client without products", curLineNo})
		}
		res.Clients = append(res.Clients, *cur)
		cur = nil
	}

	for i, raw := range splitLines(body) {
		n := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := clientRe.FindStringSubmatch(line); m != nil {
			flush()
			awaitingObs = false
			name := strings.TrimSpace(m[1])
			if name == "" {
				res.Issues = append(res.Issues, Issue{LevelError, "client without name", n})
				continue
			}
			cur = &ParsedClient{Name: name}
			curLineNo = n
			awaitingObs = true
			continue
		}

		if awaitingObs {
			awaitingObs = false
			if m := obsRe.FindStringSubmatch(line); m != nil {
				cur.Observations = strings.TrimSpace(m[1])
				continue
			}
		}

		if m := productRe.FindStringSubmatch(line); m != nil {
			if cur == nil {
				res.Issues = append(res.Issues, Issue{LevelWarning, "product line with no client", n})
				continue
			}
			cur.Lines = append(cur.Lines, ParsedLine{
				Seq:        len(cur.Lines) + 1,
				Quantity:   parseDecimal(m[1]),
				UnitRaw:    m[2],
				ProductRaw: strings.TrimSpace(m[3]),
				Price:      parseDecimal(m[4]),
			})
			continue
		}

		if separatorRe.MatchString(line) {
			continue
		}
		if cur != nil {
			res.Issues = append(res.Issues, Issue{LevelWarning, "misformatted line", n})
		}
	}

	flush()
	return res
}

func splitLines(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.Split(body, "\n")
}

// parseDecimal accepts comma or dot as decimal separator. Inputs have been
// vetted by the product regexp.
func parseDecimal(s string) float64 {
	s = strings.Replace(s, ",", ".", 1)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
