package verify

import (
	"fmt"
	"regexp"
	"strconv"
)

// datePattern accepts dd.mm.yyyy, dd/mm/yyyy, dd-mm-yyyy and the ISO forms
// yyyy-mm-dd / yyyy/mm/dd. The ISO alternative comes first so a four-digit
// year is never consumed as a day.
var datePattern = regexp.MustCompile(`(\d{4})[/-](\d{2})[/-](\d{2})|(\d{2})[./\-](\d{2})[./\-](\d{4})`)

// protocolKeywordPattern anchors the extraction near any of the portal's
// "protocol" spellings (Protocolo, Protocolada, Protocolizado, ...).
var protocolKeywordPattern = regexp.MustCompile(`(?i)protocol\pL*`)

// ExtractProtocolDate finds the protocol date inside free text. Among all
// valid date tokens the one nearest a protocol keyword wins; without a
// keyword the first valid token is taken. The result is canonical
// dd/mm/yyyy; ok is false when no structurally valid date is present.
func ExtractProtocolDate(text string) (string, bool) {
	type candidate struct {
		pos  int
		date string
	}
	var candidates []candidate
	for _, loc := range datePattern.FindAllStringSubmatchIndex(text, -1) {
		date, valid := canonicalDate(text, loc)
		if !valid {
			continue
		}
		candidates = append(candidates, candidate{pos: loc[0], date: date})
	}
	if len(candidates) == 0 {
		return "", false
	}

	anchors := protocolKeywordPattern.FindAllStringIndex(text, -1)
	if len(anchors) == 0 {
		return candidates[0].date, true
	}

	best := candidates[0]
	bestDist := -1
	for _, c := range candidates {
		for _, a := range anchors {
			d := c.pos - a[0]
			if d < 0 {
				d = -d
			}
			if bestDist < 0 || d < bestDist {
				bestDist = d
				best = c
			}
		}
	}
	return best.date, true
}

// canonicalDate validates one datePattern match and renders it dd/mm/yyyy.
func canonicalDate(text string, loc []int) (string, bool) {
	group := func(i int) string {
		if loc[2*i] < 0 {
			return ""
		}
		return text[loc[2*i]:loc[2*i+1]]
	}

	var day, month, year string
	if group(1) != "" {
		year, month, day = group(1), group(2), group(3)
	} else {
		day, month, year = group(4), group(5), group(6)
	}

	d, _ := strconv.Atoi(day)
	m, _ := strconv.Atoi(month)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s", day, month, year), true
}
