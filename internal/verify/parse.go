package verify

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// caseNumberPattern matches the judicial case number layout used by the
// portal: digits grouped as 1-7/2/4/1/2/4, dot separated.
var caseNumberPattern = regexp.MustCompile(`\d{1,7}\.\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}`)

// identifierPattern matches the two-group document identifier embedded in
// filenames, e.g. _9565_56790_.
var identifierPattern = regexp.MustCompile(`_(\d+)_(\d+)_`)

// bareIdentifierPattern tolerates tokens without the surrounding separators.
var bareIdentifierPattern = regexp.MustCompile(`(\d+)_(\d+)`)

// ParseLine decomposes one raw filename-like line into its canonical case
// number and document identifier. The case number is mandatory; the first
// group is zero-padded to seven digits. The identifier is optional and, when
// present, is the rightmost _digits_digits_ token in the line.
func ParseLine(line string) (ParsedLine, error) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return ParsedLine{}, ErrMalformedLine
	}
	stem := strings.TrimSuffix(raw, filepath.Ext(raw))

	cases := caseNumberPattern.FindAllString(stem, -1)
	if len(cases) == 0 {
		return ParsedLine{}, fmt.Errorf("%w: no case number in %q", ErrMalformedLine, raw)
	}
	caseNumber := padCaseNumber(cases[len(cases)-1])

	identifier := ""
	if ids := identifierPattern.FindAllStringSubmatch(stem, -1); len(ids) > 0 {
		last := ids[len(ids)-1]
		identifier = fmt.Sprintf("_%s_%s_", last[1], last[2])
	}

	return ParsedLine{
		CaseNumber: caseNumber,
		Identifier: identifier,
		Raw:        raw,
	}, nil
}

// ParseLines parses every non-empty line, skipping the ones that do not
// carry a case number. It returns ErrNoValidItems when nothing parses.
func ParseLines(lines []string) ([]ParsedLine, error) {
	parsed := make([]ParsedLine, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, err := ParseLine(line)
		if err != nil {
			continue
		}
		parsed = append(parsed, p)
	}
	if len(parsed) == 0 {
		return nil, ErrNoValidItems
	}
	return parsed, nil
}

// NormalizeIdentifier reduces an identifier-like token to its canonical
// comparison key: the rightmost digit pair with boundary separators
// stripped, so "_9565_56790_", "_9565_56790" and "9565_56790" all normalize
// to "9565_56790". The function is total; unrecognizable input yields "".
func NormalizeIdentifier(token string) string {
	if token == "" {
		return ""
	}
	if ms := identifierPattern.FindAllStringSubmatch(token, -1); len(ms) > 0 {
		last := ms[len(ms)-1]
		return last[1] + "_" + last[2]
	}
	if ms := bareIdentifierPattern.FindAllStringSubmatch(token, -1); len(ms) > 0 {
		last := ms[len(ms)-1]
		return last[1] + "_" + last[2]
	}
	return ""
}

func padCaseNumber(number string) string {
	parts := strings.Split(number, ".")
	if len(parts) != 6 {
		return number
	}
	if len(parts[0]) < 7 {
		parts[0] = strings.Repeat("0", 7-len(parts[0])) + parts[0]
	}
	return strings.Join(parts, ".")
}
