package memory

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternExtractor_EmailAndPhone(t *testing.T) {
	text := "Email me at jon@example.com or call 555-123-4567"
	ents := NewPatternExtractor().Extract(text)
	require.Len(t, ents, 2)

	assert.Equal(t, EntityEmail, ents[0].Type)
	assert.Equal(t, "jon@example.com", ents[0].Value)
	assert.Equal(t, 1.0, ents[0].Confidence)
	assert.Equal(t, "jon@example.com", text[ents[0].Span.Start:ents[0].Span.End])
	assert.Contains(t, ents[0].Context, "jon@example.com")

	assert.Equal(t, EntityPhone, ents[1].Type)
	assert.Equal(t, "555-123-4567", ents[1].Value)
	assert.Equal(t, 0.9, ents[1].Confidence)
}

func TestPatternExtractor_PhoneVariants(t *testing.T) {
	cases := []string{"(555) 123-4567", "555.123.4567", "5551234567", "+1 555-123-4567"}
	for _, tc := range cases {
		ents := NewPatternExtractor().Extract("reach me at " + tc + " today")
		if len(ents) != 1 || ents[0].Type != EntityPhone {
			t.Fatalf("phone %q: got %+v", tc, ents)
		}
	}
}

func TestPatternExtractor_NoMatchesIsEmptyNotNil(t *testing.T) {
	ents := NewPatternExtractor().Extract("nothing to see here")
	if ents == nil || len(ents) != 0 {
		t.Fatalf("expected empty slice, got %#v", ents)
	}
}

func TestContextWindow_RespectsRuneBoundaries(t *testing.T) {
	text := "héllo wörld ünïcode café jon@example.com ñandú über straße"
	ents := NewPatternExtractor().Extract(text)
	require.Len(t, ents, 1)
	assert.True(t, utf8.ValidString(ents[0].Context), "context split a rune: %q", ents[0].Context)
	assert.Contains(t, ents[0].Context, "jon@example.com")
}

func TestContextWindow_ClampsToText(t *testing.T) {
	assert.Equal(t, "abc", contextWindow("abc", 1, 2))
}

func TestHeuristicRecognizer_AddressAndPerson(t *testing.T) {
	text := "Jon said his address is 123 Main St, Suite 400"
	ents, err := NewHeuristicRecognizer().Recognize(text)
	require.NoError(t, err)

	var person, address *Entity
	for i := range ents {
		switch ents[i].Type {
		case EntityPerson:
			person = &ents[i]
		case EntityAddress:
			address = &ents[i]
		}
	}
	require.NotNil(t, person)
	require.NotNil(t, address)
	assert.Equal(t, "Jon", person.Value)
	assert.Equal(t, "123 Main St, Suite 400", address.Value)
}

func TestHeuristicRecognizer_SkipsStopWordsAndMergesNames(t *testing.T) {
	ents, err := NewHeuristicRecognizer().Recognize("Can you ask Sarah Connor about Monday?")
	require.NoError(t, err)

	persons := []string{}
	dates := []string{}
	for _, e := range ents {
		switch e.Type {
		case EntityPerson:
			persons = append(persons, e.Value)
		case EntityDate:
			dates = append(dates, e.Value)
		}
	}
	assert.Equal(t, []string{"Sarah Connor"}, persons)
	assert.Equal(t, []string{"Monday"}, dates)

	cases := []struct {
		text string
		want []string
	}{
		{"Meeting with Jon tomorrow", []string{"Jon"}},
		{"Message Jon about the launch", []string{"Jon"}},
		{"Remember to call Sarah", []string{"Sarah"}},
		{"Lunch at noon with Sarah", []string{"Sarah"}},
		{"Great news, Jon signed", []string{"Jon"}},
		{"Look into it. Reminder for Sarah", []string{"Sarah"}},
		{"Jon called.", []string{"Jon"}},
		{"Sarah and Jon swapped numbers", []string{"Sarah", "Jon"}},
		{"Jon's flight landed", []string{"Jon"}},
		{"Sarah Connor phoned", []string{"Sarah Connor"}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, personValues(t, NewHeuristicRecognizer(), tc.text))
		})
	}
}

func TestHeuristicRecognizer_KnownNamesOpenSentences(t *testing.T) {
	known := func(name string) bool { return name == "Jon" }
	rec := NewHeuristicRecognizer().WithKnownNames(known)

	assert.Equal(t, []string{"Jon"}, personValues(t, rec, "Jon tomorrow at noon?"))
	assert.Empty(t, personValues(t, NewHeuristicRecognizer(), "Jon tomorrow at noon?"))
	assert.Empty(t, personValues(t, rec, "Lunch tomorrow?"))
}

func personValues(t *testing.T, rec *HeuristicRecognizer, text string) []string {
	t.Helper()
	ents, err := rec.Recognize(text)
	require.NoError(t, err)
	out := []string{}
	for _, e := range ents {
		if e.Type == EntityPerson {
			out = append(out, e.Value)
		}
	}
	return out
}

type panickingRecognizer struct{}

func (panickingRecognizer) Name() string { return "broken" }

func (panickingRecognizer) Recognize(string) ([]Entity, error) { panic("model crashed") }

type failingRecognizer struct{}

func (failingRecognizer) Name() string { return "offline" }

func (failingRecognizer) Recognize(string) ([]Entity, error) {
	return nil, errors.New("model unavailable")
}

func TestCompositeExtractor_AbsorbsRecognizerFailures(t *testing.T) {
	failures := map[string]error{}
	ex := NewCompositeExtractor(panickingRecognizer{}, failingRecognizer{}, NewHeuristicRecognizer())
	ex.OnFailure(func(name string, err error) { failures[name] = err })

	ents := ex.Extract("Ask Jon to email jon@example.com")

	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures["broken"], ErrExtraction)
	assert.ErrorIs(t, failures["offline"], ErrExtraction)

	types := map[EntityType]string{}
	for _, e := range ents {
		types[e.Type] = e.Value
	}
	assert.Equal(t, "jon@example.com", types[EntityEmail])
	assert.Equal(t, "Jon", types[EntityPerson])
}

type sloppyRecognizer struct{}

func (sloppyRecognizer) Name() string { return "sloppy" }

func (sloppyRecognizer) Recognize(text string) ([]Entity, error) {
	return []Entity{
		{Type: EntityLocation, Value: "x", Span: Span{Start: -1, End: 2}},
		{Type: EntityLocation, Value: text[:5], Span: Span{Start: 0, End: 5}},
	}, nil
}

func TestCompositeExtractor_DropsInvalidSpansAndFillsContext(t *testing.T) {
	ents := NewCompositeExtractor(sloppyRecognizer{}).Extract("Paris in the spring")
	require.Len(t, ents, 1)
	assert.Equal(t, "Paris", ents[0].Value)
	assert.Equal(t, "Paris in the spring", ents[0].Context)
}

func TestKeywordClassifier(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Please send the report", IntentSendEmail},
		{"Let's schedule a call", IntentScheduleMeeting},
		{"I need to meet with Jon next week", IntentScheduleMeeting},
		{"Find the contract", IntentSearch},
		{"Remind me to call mom", IntentSetReminder},
		{"Where is the office?", IntentQuestion},
		{"The weather is nice", IntentStatement},
		{"", IntentStatement},
	}
	c := NewKeywordClassifier()
	for _, tc := range cases {
		if got := c.Classify(tc.text); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestLevenshteinMatcher(t *testing.T) {
	m := LevenshteinMatcher{}
	assert.Equal(t, 1.0, m.Similarity("Jon", "jon"))
	assert.InDelta(t, 13.0/14.0, m.Similarity("Jonathan Smith", "Jonathon Smith"), 1e-9)
	assert.Less(t, m.Similarity("Jon", "Sarah"), 0.5)
}
