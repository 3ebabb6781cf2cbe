package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
)

const (
	answerNotUnderstood = "I couldn't understand what you're asking about"
	answerNeedContext   = "I need more context to answer that question"
	answerNoSummary     = "There is no recent conversation to summarize"
	answerNoContacts    = "I don't know any contacts yet"
	contactSearchHint   = "Try searching for the contact by name"

	defaultRelatedLimit = 5
	recentContactsLimit = 5
)

// infoTypes are checked in order; the first one named in the question wins.
var infoTypes = []struct {
	word string
	typ  EntityType
}{
	{"address", EntityAddress},
	{"email", EntityEmail},
	{"phone", EntityPhone},
}

// Recall answers natural-language questions against a System's state
// without modifying it.
type Recall struct {
	sys          *System
	relatedLimit int
}

func NewRecall(sys *System) *Recall {
	return &Recall{sys: sys, relatedLimit: defaultRelatedLimit}
}

// ClassifyQuery picks the recall branch for a question.
func ClassifyQuery(question string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "did"), strings.Contains(q, "has"):
		return QueryInformationCheck
	case strings.Contains(q, "summarize"), strings.Contains(q, "what happened"):
		return QuerySummaryRequest
	case strings.Contains(q, "who"), strings.Contains(q, "contact"):
		return QueryContactQuery
	default:
		return QueryGeneral
	}
}

func (r *Recall) Query(ctx context.Context, question string) Answer {
	entities := r.sys.safeExtract(question)
	person := ""
	for _, e := range entities {
		if e.Type == EntityPerson {
			person = e.Value
			break
		}
	}

	qt := ClassifyQuery(question)
	var ans Answer
	switch qt {
	case QueryInformationCheck:
		ans = r.checkInformation(question, person)
	case QuerySummaryRequest:
		ans = r.summarize(person)
	case QueryContactQuery:
		ans = r.queryContact(person)
	default:
		ans = r.general(ctx, question)
	}
	ans.QueryType = qt
	r.sys.metrics.recallAnswered(qt)
	return ans
}

func (r *Recall) checkInformation(question, person string) Answer {
	lower := strings.ToLower(question)
	info := ""
	var typ EntityType
	for _, it := range infoTypes {
		if strings.Contains(lower, it.word) {
			info, typ = it.word, it.typ
			break
		}
	}
	if person == "" || info == "" {
		return Answer{Answer: answerNotUnderstood}
	}

	needle := strings.ToLower(person)
	for _, m := range r.sys.window.Snapshot() {
		if strings.Contains(strings.ToLower(m.Content), needle) && m.HasEntity(typ) {
			return Answer{
				Answer: fmt.Sprintf("Yes, %s sent their %s", person, info),
				Found:  boolPtr(true),
			}
		}
	}
	return Answer{
		Answer:     fmt.Sprintf("No, %s hasn't sent their %s yet", person, info),
		Found:      boolPtr(false),
		Suggestion: strPtr(fmt.Sprintf("Would you like me to ask %s for their %s?", person, info)),
	}
}

// summarize digests the window, restricted to messages naming person when set.
func (r *Recall) summarize(person string) Answer {
	msgs := r.sys.window.Snapshot()
	if person != "" {
		needle := strings.ToLower(person)
		filtered := msgs[:0:0]
		for _, m := range msgs {
			if strings.Contains(strings.ToLower(m.Content), needle) {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	digest := digestMessages(msgs)
	if digest.MessageCount == 0 {
		return Answer{Answer: answerNoSummary, Found: boolPtr(false), Summary: &digest}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Over the last %d messages", digest.MessageCount)
	if person != "" {
		fmt.Fprintf(&b, " about %s", person)
	}
	if intents := formatCounts(digest.ByIntent); intents != "" {
		fmt.Fprintf(&b, ": %s", intents)
	}
	if len(digest.PeopleMentioned) > 0 {
		fmt.Fprintf(&b, ". People mentioned: %s", strings.Join(digest.PeopleMentioned, ", "))
	}
	return Answer{Answer: b.String(), Found: boolPtr(true), Summary: &digest}
}

func digestMessages(msgs []*Message) ConversationDigest {
	d := ConversationDigest{
		MessageCount:    len(msgs),
		BySpeaker:       map[string]int{},
		ByIntent:        map[string]int{},
		PeopleMentioned: []string{},
	}
	seen := map[string]struct{}{}
	for _, m := range msgs {
		d.BySpeaker[string(m.Speaker)]++
		if m.Intent != "" {
			d.ByIntent[m.Intent]++
		}
		for _, e := range m.Entities {
			if e.Type != EntityPerson {
				continue
			}
			key := normalizeName(e.Value)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			d.PeopleMentioned = append(d.PeopleMentioned, e.Value)
		}
	}
	if len(msgs) > 0 {
		from, to := msgs[0].Timestamp, msgs[len(msgs)-1].Timestamp
		d.From, d.To = &from, &to
	}
	return d
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s (%d)", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

func (r *Recall) queryContact(person string) Answer {
	if person == "" {
		recent := r.sys.contacts.Recent(recentContactsLimit)
		if len(recent) == 0 {
			return Answer{Answer: answerNoContacts, Found: boolPtr(false)}
		}
		names := make([]string, len(recent))
		for i, c := range recent {
			names[i] = c.Name
		}
		return Answer{
			Answer:   "Recent contacts: " + strings.Join(names, ", "),
			Found:    boolPtr(true),
			Contacts: recent,
		}
	}

	c, ok := r.sys.contacts.Lookup(person)
	if !ok {
		return Answer{
			Answer:     fmt.Sprintf("I don't have a contact named %s", person),
			Found:      boolPtr(false),
			Suggestion: strPtr(contactSearchHint),
		}
	}
	return Answer{Answer: describeContact(c), Found: boolPtr(true), Contacts: []Contact{c}}
}

func describeContact(c Contact) string {
	known := []string{}
	missing := []string{}
	for _, f := range []struct{ name, value string }{
		{"email", c.Email},
		{"phone", c.Phone},
		{"address", c.Address},
	} {
		if f.value != "" {
			known = append(known, fmt.Sprintf("%s %s", f.name, f.value))
		} else {
			missing = append(missing, f.name)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d interactions)", c.Name, c.InteractionCount)
	if len(known) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(known, "; "))
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, ". Unknown: %s", strings.Join(missing, ", "))
	}
	return b.String()
}

func (r *Recall) general(ctx context.Context, question string) Answer {
	ans := Answer{Answer: answerNeedContext}
	searcher := r.sys.searcher()
	if searcher == nil {
		return ans
	}
	hits, err := searcher.SearchMessages(ctx, question, r.relatedLimit)
	if err != nil {
		logger.DebugCF("memory", "Related message search failed", map[string]interface{}{"error": err.Error()})
		return ans
	}
	ans.Related = hits
	return ans
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
