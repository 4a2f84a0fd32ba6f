package verify

import (
	"regexp"
	"strconv"
	"strings"
)

// candidatePattern matches identifier-shaped substrings with or without the
// trailing separator.
var candidatePattern = regexp.MustCompile(`_\d+_\d+_?`)

// Common portal document categories recognized in attachment titles.
var docTypes = []string{"manifestação", "petição", "certidão", "despacho", "decisão", "cumprimento"}

// IdentifierMatch is the result of extracting an identifier from a noisy
// attachment title. Ambiguous reports that more than one structurally valid
// candidate was present and the heuristic had to choose; callers should log
// this distinctly from a plain miss, since it is a known source of false
// negatives.
type IdentifierMatch struct {
	Identifier string
	Ambiguous  bool
}

// ExtractIdentifier scans a title or filename for the document identifier.
// When target is non-empty the literal target (in its separator variants) is
// preferred, then any candidate containing both of the target's numeric
// groups. Without a target, the rightmost candidate whose groups both have at
// least three digits and whose first group is not year-like wins; filenames
// embed several digit pairs (system ids, case-number fragments, the file's
// own suffix), and the rightmost structurally valid one is the best
// context-free guess.
func ExtractIdentifier(title, target string) IdentifierMatch {
	title = strings.TrimSpace(title)
	if title == "" {
		return IdentifierMatch{}
	}

	candidates := candidatePattern.FindAllString(title, -1)

	if target != "" {
		clean := strings.Trim(target, "_")
		for _, variant := range []string{target, "_" + clean, "_" + clean + "_"} {
			if variant != "" && strings.Contains(title, variant) {
				return IdentifierMatch{Identifier: variant}
			}
		}
		groups := strings.Split(clean, "_")
		if len(groups) == 2 {
			for _, cand := range candidates {
				if strings.Contains(cand, groups[0]) && strings.Contains(cand, groups[1]) {
					return IdentifierMatch{Identifier: cand}
				}
			}
		}
	}

	valid := 0
	var pick string
	for i := len(candidates) - 1; i >= 0; i-- {
		groups := strings.Split(strings.Trim(candidates[i], "_"), "_")
		if len(groups) != 2 || len(groups[0]) < 3 || len(groups[1]) < 3 {
			continue
		}
		if yearLike(groups[0]) {
			continue
		}
		valid++
		if pick == "" {
			pick = candidates[i]
		}
	}
	return IdentifierMatch{Identifier: pick, Ambiguous: valid > 1}
}

// FindAttachment returns the first attachment whose normalized identifier
// equals the normalized target. Attachments are inspected in order and the
// scan stops at the first hit, so callers feeding a lazily built list keep
// the early-stop property.
func FindAttachment(target string, attachments []Attachment) (Attachment, bool) {
	want := NormalizeIdentifier(target)
	if want == "" {
		return Attachment{}, false
	}
	for _, att := range attachments {
		if got := attachmentKey(att, target); got != "" && got == want {
			return att, true
		}
	}
	return Attachment{}, false
}

// SimilarNames lists up to max attachment titles whose normalized identifier
// contains the normalized target; used to enrich not-found diagnostics.
func SimilarNames(target string, attachments []Attachment, max int) []string {
	want := NormalizeIdentifier(target)
	if want == "" {
		return nil
	}
	var names []string
	for _, att := range attachments {
		if len(names) >= max {
			break
		}
		title := NormalizeIdentifier(att.Title)
		href := NormalizeIdentifier(att.Href)
		if (title != "" && strings.Contains(title, want)) ||
			(href != "" && strings.Contains(href, want)) {
			names = append(names, att.Title)
		}
	}
	return names
}

// DetectDocType tags a title with the first recognized document category.
func DetectDocType(title string) string {
	lower := strings.ToLower(title)
	for _, t := range docTypes {
		if strings.Contains(lower, t) {
			return strings.ToUpper(t[:1]) + t[1:]
		}
	}
	return ""
}

// attachmentKey derives the comparison key for one attachment, preferring
// the already extracted identifier, then the title, then the link.
func attachmentKey(att Attachment, target string) string {
	if key := NormalizeIdentifier(att.Identifier); key != "" {
		return key
	}
	if m := ExtractIdentifier(att.Title, target); m.Identifier != "" {
		if key := NormalizeIdentifier(m.Identifier); key != "" {
			return key
		}
	}
	return NormalizeIdentifier(att.Href)
}

func yearLike(group string) bool {
	if len(group) != 4 {
		return false
	}
	n, err := strconv.Atoi(group)
	if err != nil {
		return false
	}
	return n >= 1900 && n <= 2099
}
