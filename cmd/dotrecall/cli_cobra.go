package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/dotsetgreg/dotrecall/pkg/memory"
	"github.com/dotsetgreg/dotrecall/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "dotrecall",
		Short: "Conversational memory with contact tracking and recall",
		Long: strings.TrimSpace(`dotrecall remembers what you tell it.

Messages are scanned for people, contact details, dates and intents. People
become contacts, recent messages form a short-term context, and questions
about the conversation are answered from that memory. State lives in a
SQLite database under the workspace so every command shares it.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "Path to config.json")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand(opts))
	root.AddCommand(newChatCommand(opts))
	root.AddCommand(newAskCommand(opts))
	root.AddCommand(newContactsCommand(opts))
	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newOnboardCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.dotrecall config and workspace",
		Long:    "Write a default configuration file and create the workspace directory that holds the memory database.",
		Example: "  dotrecall onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				fmt.Fprintf(out, "Config already exists at %s\n", opts.configPath)
				fmt.Fprint(out, "Overwrite? (y/n): ")
				response, readErr := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.ToLower(strings.TrimSpace(response))
				if readErr != nil || (response != "y" && response != "yes") {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			cfg := config.DefaultConfig()
			if err := config.SaveConfig(opts.configPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			workspace := cfg.WorkspacePath()
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return fmt.Errorf("create workspace: %w", err)
			}

			fmt.Fprintf(out, "%s is ready!\n", appName)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Tell it something: dotrecall chat -m \"Jon's email is jon@example.com\"")
			fmt.Fprintln(out, "  2. Ask about it:      dotrecall ask \"Did Jon send his email?\"")
			fmt.Fprintln(out, "  3. Run the HTTP API:  dotrecall serve")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config without asking")
	return cmd
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		message string
		speaker string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Feed messages into memory (interactive or one-shot)",
		Long: strings.TrimSpace(`Start an interactive session or process a single message.

Plain lines are processed as messages. Slash commands query memory:
/ask <question>, /contacts [query], /history <name>, /context, /new [topic],
/threads, /help. Type exit to quit.`),
		Example: strings.Join([]string{
			"  dotrecall chat",
			"  dotrecall chat -m \"I need to meet with Jon next week\"",
			"  dotrecall chat -m \"booked\" --speaker agent --json",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := openService(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			session := &chatSession{svc: svc, out: cmd.OutOrStdout(), json: asJSON, speaker: memory.ParseSpeaker(speaker)}
			if strings.TrimSpace(message) != "" {
				return session.processMessage(ctx, message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s interactive mode (Ctrl+C to exit)\n\n", appName)
			session.interactive(ctx, cmd.InOrStdin())
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Process one message and exit")
	cmd.Flags().StringVar(&speaker, "speaker", string(memory.SpeakerUser), "Speaker for processed messages (user, agent, system)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from memory",
		Args:  cobra.MinimumNArgs(1),
		Example: strings.Join([]string{
			"  dotrecall ask \"Did Jon send his address?\"",
			"  dotrecall ask \"Summarize the conversation\"",
			"  dotrecall ask \"Who is Sarah?\" --json",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := openService(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			ans := svc.Query(ctx, strings.Join(args, " "))
			if asJSON {
				return printJSON(cmd.OutOrStdout(), ans)
			}
			renderAnswer(cmd.OutOrStdout(), ans)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}

func newContactsCommand(opts *rootOptions) *cobra.Command {
	contactsRoot := &cobra.Command{
		Use:   "contacts",
		Short: "Search and annotate remembered contacts",
	}

	var asJSON bool
	contactsRoot.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	contactsRoot.AddCommand(&cobra.Command{
		Use:     "search [query]",
		Aliases: []string{"list"},
		Short:   "Search contacts by name, alias, email or company",
		Args:    cobra.MaximumNArgs(1),
		Example: "  dotrecall contacts search jon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := openService(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			var found []memory.Contact
			if len(args) == 0 {
				found = svc.System().Contacts().Recent(0)
			} else {
				found = svc.System().SearchContacts(args[0])
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), found)
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No contacts found.")
				return nil
			}
			for _, c := range found {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", c.ID, contactLine(c))
			}
			return nil
		},
	})

	contactsRoot.AddCommand(&cobra.Command{
		Use:     "show <name|id>",
		Short:   "Show a contact with its interaction history",
		Args:    cobra.ExactArgs(1),
		Example: "  dotrecall contacts show Jon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := openService(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			c, err := resolveContact(svc, args[0])
			if err != nil {
				return err
			}
			h, err := svc.System().GetContactHistory(ctx, c.ID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), h)
			}
			renderHistory(cmd.OutOrStdout(), h)
			return nil
		},
	})

	contactsRoot.AddCommand(&cobra.Command{
		Use:     "note <name|id> <note>",
		Short:   "Attach a free-form note to a contact",
		Args:    cobra.MinimumNArgs(2),
		Example: "  dotrecall contacts note Jon \"prefers morning calls\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := openService(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			c, err := resolveContact(svc, args[0])
			if err != nil {
				return err
			}
			updated, err := svc.System().Contacts().AddNote(ctx, c.ID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), updated)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Noted for %s (%d notes)\n", updated.Name, len(updated.Notes))
			return nil
		},
	})

	return contactsRoot
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API with health and metrics endpoints",
		Long:    "Serve the memory engine over JSON HTTP. /health reports readiness and /metrics exposes Prometheus metrics.",
		Example: "  dotrecall serve --port 18791",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cfg, err := openService(ctx, opts, reg)
			if err != nil {
				return err
			}
			defer svc.Close()

			addr := cfg.ListenAddr()
			if host != "" || port > 0 {
				h, p := cfg.Server.Host, cfg.Server.Port
				if host != "" {
					h = host
				}
				if port > 0 {
					p = port
				}
				addr = h + ":" + strconv.Itoa(p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s API listening on http://%s\n", appName, addr)
			if err := server.New(svc, reg).ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Override server.host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and memory store readiness",
		Example: "  dotrecall status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Status\n", appName)
			fmt.Fprintf(out, "Version: %s\n\n", formatVersion())

			if _, err := os.Stat(opts.configPath); err == nil {
				fmt.Fprintln(out, "Config:", opts.configPath, "✓")
			} else {
				fmt.Fprintln(out, "Config:", opts.configPath, "not found (defaults in use)")
			}

			ctx := cmd.Context()
			svc, cfg, err := openService(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			st, err := svc.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Workspace:", cfg.WorkspacePath())
			fmt.Fprintln(out, "User:", st.UserID)
			fmt.Fprintln(out, "Backend:", st.Backend)
			fmt.Fprintf(out, "Window: %d/%d messages\n", st.WindowLen, st.WindowCap)
			fmt.Fprintf(out, "Contacts: %d\n", st.Contacts)
			if st.Stored != nil {
				fmt.Fprintf(out, "Stored: %d messages, %d contacts, %d interactions\n", st.Stored.Messages, st.Stored.Contacts, st.Stored.Interactions)
			}
			if st.BreakerState != "" {
				fmt.Fprintln(out, "Store breaker:", st.BreakerState)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  dotrecall version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}

// resolveContact accepts a contact id or a (possibly fuzzy) name.
func resolveContact(svc *memory.Service, ref string) (memory.Contact, error) {
	contacts := svc.System().Contacts()
	if c, err := contacts.Get(ref); err == nil {
		return c, nil
	}
	if c, ok := contacts.Lookup(ref); ok {
		return c, nil
	}
	return memory.Contact{}, fmt.Errorf("contact %q: %w", ref, memory.ErrContactNotFound)
}
