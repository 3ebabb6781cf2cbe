package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/dotsetgreg/dotrecall/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	docsRoot := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}

	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate CLI, config and HTTP API reference docs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docsRoot.AddCommand(gen)
	return docsRoot
}

// generatedDocs maps a slash-separated path under the docs root to its content.
type generatedDocs map[string][]byte

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	docs, err := buildReferenceDocs(rootFactory)
	if err != nil {
		return err
	}
	if checkOnly {
		return checkDocs(docs, outputDir)
	}
	return writeDocs(docs, outputDir)
}

func buildReferenceDocs(rootFactory func() *cobra.Command) (generatedDocs, error) {
	docs := generatedDocs{}

	cliRoot := rootFactory()
	disableAutoGenTag(cliRoot)

	tmpDir, err := os.MkdirTemp("", "dotrecall-docs-*")
	if err != nil {
		return nil, fmt.Errorf("create temp docs dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	cliDir := filepath.Join(tmpDir, "cli")
	manDir := filepath.Join(tmpDir, "man")
	for _, dir := range []string{cliDir, manDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	prepender := func(filename string) string {
		title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return fmt.Sprintf("# %s\n\n", strings.ReplaceAll(title, "_", " "))
	}
	linkHandler := func(name string) string { return name }
	if err := cobraDoc.GenMarkdownTreeCustom(cliRoot, cliDir, prepender, linkHandler); err != nil {
		return nil, fmt.Errorf("generate cli markdown docs: %w", err)
	}
	header := &cobraDoc.GenManHeader{Title: "DOTRECALL", Section: "1", Source: appName}
	if err := cobraDoc.GenManTree(cliRoot, header, manDir); err != nil {
		return nil, fmt.Errorf("generate man pages: %w", err)
	}
	if err := collectDir(tmpDir, "reference", docs); err != nil {
		return nil, err
	}

	configRef, err := buildConfigReferenceMarkdown()
	if err != nil {
		return nil, err
	}
	docs["reference/config.md"] = []byte(configRef)

	apiRef, err := buildAPIReferenceMarkdown()
	if err != nil {
		return nil, err
	}
	docs["reference/api.md"] = []byte(apiRef)
	return docs, nil
}

func disableAutoGenTag(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		disableAutoGenTag(child)
	}
}

func collectDir(root, prefix string, docs generatedDocs) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		docs[prefix+"/"+filepath.ToSlash(rel)] = data
		return nil
	})
}

func (d generatedDocs) paths() []string {
	out := make([]string, 0, len(d))
	for p := range d {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// writeDocs replaces the generated reference tree under outputDir.
func writeDocs(docs generatedDocs, outputDir string) error {
	if err := os.RemoveAll(filepath.Join(outputDir, "reference")); err != nil {
		return fmt.Errorf("clear reference docs: %w", err)
	}
	for _, rel := range docs.paths() {
		dst := filepath.Join(outputDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", rel, err)
		}
		if err := os.WriteFile(dst, docs[rel], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func checkDocs(docs generatedDocs, outputDir string) error {
	onDisk := generatedDocs{}
	refDir := filepath.Join(outputDir, "reference")
	if _, err := os.Stat(refDir); err != nil {
		return fmt.Errorf("docs out of date: missing reference")
	}
	if err := collectDir(refDir, "reference", onDisk); err != nil {
		return err
	}
	for _, rel := range docs.paths() {
		existing, ok := onDisk[rel]
		if !ok {
			return fmt.Errorf("docs out of date: missing %s", rel)
		}
		if !bytes.Equal(existing, docs[rel]) {
			return fmt.Errorf("docs out of date: %s differs; run `dotrecall docs generate`", rel)
		}
		delete(onDisk, rel)
	}
	if stale := onDisk.paths(); len(stale) > 0 {
		return fmt.Errorf("docs out of date: stale file %s", stale[0])
	}
	return nil
}

type configFieldRow struct {
	Path    string
	Type    string
	Env     string
	Default string
}

func buildConfigReferenceMarkdown() (string, error) {
	defaults, err := flattenConfigDefaults()
	if err != nil {
		return "", err
	}

	rows := []configFieldRow{}
	collectConfigRows(reflect.TypeOf((*config.Config)(nil)).Elem(), "", defaults, &rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Generated from `pkg/config/config.go` and `config.DefaultConfig()`. ")
	b.WriteString("Environment variables override values from `~/.dotrecall/config.json`.\n\n")
	b.WriteString("| Key | Type | Env Var | Default |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| `%s` | `%s` | `%s` | `%s` |\n",
			escapePipes(row.Path), row.Type, valueOr(row.Env, "-"), escapePipes(valueOr(row.Default, "-")))
	}
	return b.String(), nil
}

func collectConfigRows(t reflect.Type, prefix string, defaults map[string]string, rows *[]configFieldRow) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := strings.TrimSpace(strings.Split(f.Tag.Get("json"), ",")[0])
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct {
			collectConfigRows(f.Type, key, defaults, rows)
			continue
		}
		*rows = append(*rows, configFieldRow{
			Path:    key,
			Type:    friendlyType(f.Type),
			Env:     f.Tag.Get("env"),
			Default: defaults[key],
		})
	}
}

func flattenConfigDefaults() (map[string]string, error) {
	data, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	var root map[string]interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := map[string]string{}
	flattenMapValues("", root, out)
	return out, nil
}

func flattenMapValues(prefix string, v interface{}, out map[string]string) {
	if m, ok := v.(map[string]interface{}); ok {
		for k, child := range m {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenMapValues(next, child, out)
		}
		return
	}
	encoded, _ := json.Marshal(v)
	out[prefix] = string(encoded)
}

func friendlyType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice:
		return "array<" + friendlyType(t.Elem()) + ">"
	default:
		return t.String()
	}
}

// buildAPIReferenceMarkdown lists the routes registered on the HTTP router.
func buildAPIReferenceMarkdown() (string, error) {
	type route struct{ method, path string }
	var routes []route
	err := chi.Walk(server.New(nil, nil).Routes(), func(method, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, route{method, strings.TrimSuffix(path, "/")})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk routes: %w", err)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].path != routes[j].path {
			return routes[i].path < routes[j].path
		}
		return routes[i].method < routes[j].method
	})

	var b strings.Builder
	b.WriteString("# HTTP API Reference\n\n")
	b.WriteString("Served by `dotrecall serve`. Request and response bodies are JSON. ")
	b.WriteString("`GET /metrics` is added when the server runs with a metrics registry.\n\n")
	b.WriteString("| Method | Path |\n")
	b.WriteString("| --- | --- |\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "| `%s` | `%s` |\n", r.method, r.path)
	}
	return b.String(), nil
}

func escapePipes(v string) string {
	return strings.ReplaceAll(v, "|", "\\|")
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
