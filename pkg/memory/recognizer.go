package memory

import (
	"regexp"
	"strings"
)

var (
	addressRegex = regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z][a-z]+\.?\s+){1,4}(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Ln|Lane|Dr|Drive|Way|Ct|Court|Pl|Place|Pkwy|Parkway)\b\.?(?:,?\s+(?:Suite|Ste|Apt|Unit|#)\.?\s*[A-Za-z0-9-]+)?`)
	orgRegex     = regexp.MustCompile(`\b(?:[A-Z][A-Za-z&]+\s+){1,4}(?:Inc|LLC|Corp|Corporation|Ltd|Company|Co)\b\.?`)
	dateRegexes  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:today|tomorrow|yesterday|next (?:week|month|year)|(?:next |this )?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`),
		regexp.MustCompile(`\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	}
	timeRegex       = regexp.MustCompile(`(?i)\b(?:\d{1,2}(?::\d{2})?\s?(?:am|pm)|\d{1,2}:\d{2}|noon|midnight)\b`)
	capitalizedWord = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
)

var (
	personStopWords = map[string]struct{}{}
	// subjectVerbs mark a sentence-initial capitalized word as the subject.
	subjectVerbs = map[string]struct{}{}
)

func init() {
	for _, w := range strings.Fields(`a an and also are ask but call can could did do does email find
		for from had has have he hello her hey hi his how i if is it its just last let maybe meet
		my next no not ok okay or our please remind schedule search send she so sure tell thank
		thanks that the their them then there these they this those to today tomorrow was we were
		what when where who why will with would yes yesterday you your monday tuesday wednesday
		thursday friday saturday sunday suite street st ave avenue road rd
		summarize summary show list contact contacts happened message messages meeting meetings
		reminder remember look note ping follow update`) {
		personStopWords[w] = struct{}{}
	}
	for _, w := range strings.Fields(`said says told tells called calls emailed emails texted texts
		sent sends asked asks mentioned mentions wants wanted needs needed is was will would can
		could has had just wrote writes replied messaged phoned lives works moved signed agreed
		confirmed prefers joined met shared gave left arrived booked`) {
		subjectVerbs[w] = struct{}{}
	}
}

const (
	addressConfidence = 0.75
	orgConfidence     = 0.6
	dateConfidence    = 0.7
	timeConfidence    = 0.7
	personConfidence  = 0.6
)

// HeuristicRecognizer is a rule-based stand-in for a statistical NER model.
// It recognizes street addresses, organizations, dates, times and
// capitalized person names.
type HeuristicRecognizer struct {
	stopWords map[string]struct{}
	known     func(name string) bool
}

func NewHeuristicRecognizer() *HeuristicRecognizer {
	return &HeuristicRecognizer{stopWords: personStopWords}
}

// WithKnownNames lets a sentence-initial word through when known reports it
// as an existing contact name. known must be safe for concurrent use.
func (h *HeuristicRecognizer) WithKnownNames(known func(name string) bool) *HeuristicRecognizer {
	h.known = known
	return h
}

func (h *HeuristicRecognizer) Name() string { return "heuristic" }

func (h *HeuristicRecognizer) Recognize(text string) ([]Entity, error) {
	out := []Entity{}
	taken := []Span{}
	add := func(typ EntityType, start, end int, conf float64) {
		out = append(out, newEntity(text, typ, start, end, conf))
		taken = append(taken, Span{Start: start, End: end})
	}

	for _, loc := range addressRegex.FindAllStringIndex(text, -1) {
		add(EntityAddress, loc[0], loc[1], addressConfidence)
	}
	for _, loc := range orgRegex.FindAllStringIndex(text, -1) {
		if overlapsAny(taken, loc[0], loc[1]) {
			continue
		}
		add(EntityOrganization, loc[0], loc[1], orgConfidence)
	}
	for _, re := range dateRegexes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if overlapsAny(taken, loc[0], loc[1]) {
				continue
			}
			add(EntityDate, loc[0], loc[1], dateConfidence)
		}
	}
	for _, loc := range timeRegex.FindAllStringIndex(text, -1) {
		if overlapsAny(taken, loc[0], loc[1]) {
			continue
		}
		add(EntityTime, loc[0], loc[1], timeConfidence)
	}

	out = append(out, h.persons(text, taken)...)
	sortEntities(out)
	return out, nil
}

// persons joins runs of adjacent capitalized non-stop words into names. A
// lone capitalized word opening a sentence is only a name when it reads as
// the subject or is already a known contact.
func (h *HeuristicRecognizer) persons(text string, taken []Span) []Entity {
	out := []Entity{}
	start, end, words := -1, -1, 0
	flush := func() {
		if start >= 0 && (words > 1 || !sentenceStart(text, start) || h.likelyName(text, start, end)) {
			out = append(out, newEntity(text, EntityPerson, start, end, personConfidence))
		}
		start, end, words = -1, -1, 0
	}
	for _, loc := range capitalizedWord.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		if _, stop := h.stopWords[strings.ToLower(word)]; stop || overlapsAny(taken, loc[0], loc[1]) {
			flush()
			continue
		}
		if start >= 0 && text[end:loc[0]] == " " {
			end = loc[1]
			words++
			continue
		}
		flush()
		start, end, words = loc[0], loc[1], 1
	}
	flush()
	return out
}

func (h *HeuristicRecognizer) likelyName(text string, start, end int) bool {
	if h.known != nil && h.known(text[start:end]) {
		return true
	}
	rest := text[end:]
	if strings.HasPrefix(rest, "'s") || strings.HasPrefix(rest, "’s") {
		return true
	}
	next := strings.Fields(rest)
	if len(next) == 0 || !strings.HasPrefix(rest, " ") {
		return false
	}
	first := strings.Trim(next[0], ",.!?;:")
	if _, ok := subjectVerbs[first]; ok {
		return true
	}
	return first == "and" && len(next) > 1 && capitalizedWord.MatchString(next[1])
}

// sentenceStart reports whether pos opens the text or follows . ! or ?.
func sentenceStart(text string, pos int) bool {
	before := strings.TrimRight(text[:pos], " \t\r\n\"'(")
	if before == "" {
		return true
	}
	switch before[len(before)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func overlapsAny(spans []Span, start, end int) bool {
	for _, s := range spans {
		if start < s.End && s.Start < end {
			return true
		}
	}
	return false
}
