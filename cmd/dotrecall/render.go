package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/memory"
)

const timeLayout = "2006-01-02 15:04"

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func renderProcessResult(w io.Writer, res memory.ProcessResult) {
	fmt.Fprintf(w, "intent: %s\n", res.Intent)
	if len(res.Entities) > 0 {
		parts := make([]string, 0, len(res.Entities))
		for _, e := range res.Entities {
			parts = append(parts, fmt.Sprintf("%s %q", e.Type, e.Value))
		}
		fmt.Fprintf(w, "entities: %s\n", strings.Join(parts, ", "))
	}
	for _, u := range res.ContactUpdates {
		switch {
		case u.Created:
			fmt.Fprintf(w, "contact: %s (new)\n", u.Name)
		case len(u.Changes) > 0:
			fmt.Fprintf(w, "contact: %s (updated %s)\n", u.Name, strings.Join(u.Changes, ", "))
		default:
			fmt.Fprintf(w, "contact: %s\n", u.Name)
		}
	}
	for _, s := range res.Suggestions {
		line := fmt.Sprintf("suggestion [%s] %s", s.Priority, s.Description)
		if s.DueAt != nil {
			line += " (due " + s.DueAt.Local().Format(timeLayout) + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func renderAnswer(w io.Writer, ans memory.Answer) {
	fmt.Fprintln(w, ans.Answer)
	if ans.Suggestion != nil {
		fmt.Fprintf(w, "suggestion: %s\n", *ans.Suggestion)
	}
	for _, hit := range ans.Related {
		fmt.Fprintf(w, "  related [%s %s]: %s\n", hit.Speaker, hit.Timestamp.Local().Format(timeLayout), hit.Content)
	}
}

func contactLine(c memory.Contact) string {
	parts := []string{c.Name}
	for _, v := range []string{c.Email, c.Phone, c.Company} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return fmt.Sprintf("%s (%d interactions)", strings.Join(parts, " · "), c.InteractionCount)
}

func renderHistory(w io.Writer, h memory.ContactHistory) {
	c := h.Contact
	fmt.Fprintf(w, "%s [%s]\n", c.Name, c.ID)
	for _, f := range []struct{ label, value string }{
		{"email", c.Email},
		{"phone", c.Phone},
		{"address", c.Address},
		{"company", c.Company},
		{"relationship", c.Relationship},
	} {
		if f.value != "" {
			fmt.Fprintf(w, "  %s: %s\n", f.label, f.value)
		}
	}
	if len(c.Aliases) > 0 {
		fmt.Fprintf(w, "  aliases: %s\n", strings.Join(c.Aliases, ", "))
	}
	fmt.Fprintf(w, "  interactions: %d\n", h.InteractionCount)
	if h.LastInteraction != nil {
		fmt.Fprintf(w, "  last seen: %s\n", h.LastInteraction.Local().Format(timeLayout))
	}
	for _, n := range h.Notes {
		fmt.Fprintf(w, "  note: %s\n", n)
	}
	for _, in := range h.Interactions {
		fmt.Fprintf(w, "  - %s %s\n", in.At.Local().Format(timeLayout), in.Summary)
	}
}

func renderThread(w io.Writer, t memory.ThreadInfo) {
	state := "archived"
	if t.IsActive {
		state = "active"
	}
	topic := t.Topic
	if topic == "" {
		topic = "-"
	}
	fmt.Fprintf(w, "  %s  %-8s %3d msgs  started %s  %s\n", t.ID, state, t.MessageCount, t.StartedAt.Local().Format(time.Kitchen), topic)
}
