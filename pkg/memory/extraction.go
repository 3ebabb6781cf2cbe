package memory

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
)

var (
	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRegex = regexp.MustCompile(`(?:\+?1[-. ]?)?(?:\(\d{3}\)\s?|\b\d{3}[-.]?)\d{3}[-.]?\d{4}\b`)
)

const (
	emailConfidence = 1.0
	phoneConfidence = 0.9
	contextRadius   = 20
)

type pattern struct {
	typ        EntityType
	re         *regexp.Regexp
	confidence float64
}

// PatternExtractor finds emails and North-American phone numbers.
type PatternExtractor struct {
	patterns []pattern
}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{patterns: []pattern{
		{typ: EntityEmail, re: emailRegex, confidence: emailConfidence},
		{typ: EntityPhone, re: phoneRegex, confidence: phoneConfidence},
	}}
}

// Extract reports every match independently; overlapping matches are kept.
func (p *PatternExtractor) Extract(text string) []Entity {
	out := []Entity{}
	for _, pt := range p.patterns {
		for _, loc := range pt.re.FindAllStringIndex(text, -1) {
			out = append(out, newEntity(text, pt.typ, loc[0], loc[1], pt.confidence))
		}
	}
	sortEntities(out)
	return out
}

// CompositeExtractor merges pattern matches with recognizer output.
type CompositeExtractor struct {
	patterns    *PatternExtractor
	recognizers []Recognizer
	onFailure   func(recognizer string, err error)
}

func NewCompositeExtractor(recognizers ...Recognizer) *CompositeExtractor {
	return &CompositeExtractor{
		patterns:    NewPatternExtractor(),
		recognizers: recognizers,
	}
}

// OnFailure registers a hook invoked for each recognizer error.
func (c *CompositeExtractor) OnFailure(fn func(recognizer string, err error)) {
	c.onFailure = fn
}

func (c *CompositeExtractor) Extract(text string) []Entity {
	out := c.patterns.Extract(text)
	for _, r := range c.recognizers {
		ents, err := recognizeSafely(r, text)
		if err != nil {
			logger.WarnCF("memory", "Recognizer failed; continuing without it", map[string]interface{}{
				"recognizer": r.Name(),
				"error":      err.Error(),
			})
			if c.onFailure != nil {
				c.onFailure(r.Name(), err)
			}
			continue
		}
		for _, e := range ents {
			if e.Span.Start < 0 || e.Span.End > len(text) || e.Span.Start > e.Span.End {
				continue
			}
			if e.Context == "" {
				e.Context = contextWindow(text, e.Span.Start, e.Span.End)
			}
			out = append(out, e)
		}
	}
	sortEntities(out)
	return out
}

func recognizeSafely(r Recognizer, text string) (ents []Entity, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ents = nil
			err = fmt.Errorf("%w: %s panicked: %v", ErrExtraction, r.Name(), rec)
		}
	}()
	ents, err = r.Recognize(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, r.Name(), err)
	}
	return ents, nil
}

func newEntity(text string, typ EntityType, start, end int, confidence float64) Entity {
	return Entity{
		Type:       typ,
		Value:      text[start:end],
		Confidence: confidence,
		Context:    contextWindow(text, start, end),
		Span:       Span{Start: start, End: end},
	}
}

// contextWindow returns text within contextRadius bytes of [start,end),
// widened so it never splits a UTF-8 sequence.
func contextWindow(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

func sortEntities(ents []Entity) {
	sort.SliceStable(ents, func(i, j int) bool {
		a, b := ents[i], ents[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End < b.Span.End
		}
		return a.Type < b.Type
	})
}
