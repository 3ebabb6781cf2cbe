package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dotsetgreg/dotrecall/pkg/memory"
)

const chatHelp = `Commands:
  /ask <question>    answer a question from memory
  /contacts [query]  list or search contacts
  /history <name>    show a contact's interaction history
  /context           show the short-term context
  /new [topic]       start a new conversation thread
  /threads           list threads
  exit               quit`

type chatSession struct {
	svc     *memory.Service
	out     io.Writer
	json    bool
	speaker memory.Speaker
}

func (s *chatSession) interactive(ctx context.Context, in io.Reader) {
	if in != os.Stdin {
		s.simpleInteractive(ctx, in)
		return
	}

	prompt := fmt.Sprintf("%s you: ", appName)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".dotrecall_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(s.out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(s.out, "Falling back to simple input mode...")
		s.simpleInteractive(ctx, in)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			continue
		}
		if s.handleLine(ctx, line) {
			fmt.Fprintln(s.out, "Goodbye!")
			return
		}
	}
}

func (s *chatSession) simpleInteractive(ctx context.Context, in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(s.out, "%s you: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			return
		}
		if s.handleLine(ctx, line) {
			fmt.Fprintln(s.out, "Goodbye!")
			return
		}
	}
}

// handleLine runs one REPL line and reports whether the session should end.
func (s *chatSession) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}
	if input == "exit" || input == "quit" {
		return true
	}
	if !strings.HasPrefix(input, "/") {
		if err := s.processMessage(ctx, input); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		return false
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	arg = strings.TrimSpace(arg)
	if err := s.runCommand(ctx, strings.ToLower(name), arg); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *chatSession) runCommand(ctx context.Context, name, arg string) error {
	sys := s.svc.System()
	switch name {
	case "ask":
		if arg == "" {
			return fmt.Errorf("usage: /ask <question>")
		}
		ans := s.svc.Query(ctx, arg)
		if s.json {
			return printJSON(s.out, ans)
		}
		renderAnswer(s.out, ans)
	case "contacts":
		var found []memory.Contact
		if arg == "" {
			found = sys.Contacts().Recent(0)
		} else {
			found = sys.SearchContacts(arg)
		}
		if s.json {
			return printJSON(s.out, found)
		}
		if len(found) == 0 {
			fmt.Fprintln(s.out, "No contacts found.")
		}
		for _, c := range found {
			fmt.Fprintf(s.out, "  %s\n", contactLine(c))
		}
	case "history":
		if arg == "" {
			return fmt.Errorf("usage: /history <name>")
		}
		c, err := resolveContact(s.svc, arg)
		if err != nil {
			return err
		}
		h, err := sys.GetContactHistory(ctx, c.ID)
		if err != nil {
			return err
		}
		if s.json {
			return printJSON(s.out, h)
		}
		renderHistory(s.out, h)
	case "context":
		if s.json {
			return printJSON(s.out, map[string]interface{}{"summary": sys.ContextSummary(), "messages": sys.Context()})
		}
		fmt.Fprintln(s.out, sys.ContextSummary())
	case "new":
		info := sys.NewThread(arg)
		if s.json {
			return printJSON(s.out, info)
		}
		fmt.Fprintf(s.out, "Started thread %s\n", info.ID)
	case "threads":
		threads := sys.Threads()
		if s.json {
			return printJSON(s.out, threads)
		}
		if len(threads) == 0 {
			fmt.Fprintln(s.out, "No threads yet.")
		}
		for _, t := range threads {
			renderThread(s.out, t)
		}
	case "help":
		fmt.Fprintln(s.out, chatHelp)
	default:
		return fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return nil
}

func (s *chatSession) processMessage(ctx context.Context, content string) error {
	res := s.svc.Process(ctx, s.speaker, content)
	if s.json {
		return printJSON(s.out, res)
	}
	renderProcessResult(s.out, res)
	return nil
}
