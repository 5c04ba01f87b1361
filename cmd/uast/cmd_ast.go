package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/jmylchreest/uast/pkg/ast"
	"github.com/jmylchreest/uast/pkg/grammar"
	"github.com/jmylchreest/uast/pkg/ignore"
)

// parseFile reads and parses one file with a fresh parser.
func parseFile(e *env, path, langName string) (*ast.Parser, *ast.AST, error) {
	parser, err := newParser(e)
	if err != nil {
		return nil, nil, err
	}

	var tree *ast.AST
	if langName == "" {
		tree, err = parser.ParseFile(path)
	} else {
		var (
			source string
			lang   grammar.Language
		)
		source, lang, err = loadSource(path, langName, 0)
		if err == nil {
			tree, err = parser.Parse(source, lang)
		}
	}
	if err != nil {
		parser.Close()
		return nil, nil, err
	}
	return parser, tree, nil
}

func cmdParse(e *env, args []string) error {
	files := positional(args)
	if len(files) < 1 {
		return fmt.Errorf("usage: uast parse <file> [--lang=LANG]")
	}

	parser, tree, err := parseFile(e, files[0], parseFlag(args, "--lang="))
	if err != nil {
		return err
	}
	defer parser.Close()

	return writeJSON(os.Stdout, tree)
}

func cmdExtract(e *env, args []string) error {
	files := positional(args)
	if len(files) < 1 {
		return fmt.Errorf("usage: uast extract <file> [--kind=KIND] [--lang=LANG] [--skipped] [--json]")
	}
	kind := parseFlag(args, "--kind=")
	if err := checkKind(kind); err != nil {
		return err
	}

	parser, tree, err := parseFile(e, files[0], parseFlag(args, "--lang="))
	if err != nil {
		return err
	}
	defer parser.Close()

	report, err := parser.Extract(tree)
	if err != nil {
		return err
	}
	if report, err = filterReport(report, kind); err != nil {
		return err
	}

	if hasFlag(args, "--json") {
		return writeJSON(os.Stdout, report)
	}
	if err := writeReport(os.Stdout, tree.Source, report); err != nil {
		return err
	}
	if hasFlag(args, "--skipped") && len(report.Skipped) > 0 {
		fmt.Printf("\nSkipped %d node(s):\n", len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Printf("  %-9s %-24s line %d  (%s)\n", s.Category, s.Kind, s.StartLine+1, s.Reason)
		}
	}
	return nil
}

// checkKind rejects anything but the extraction categories ("" means all).
func checkKind(kind string) error {
	switch kind {
	case "", "all", "functions", "variables", "structs":
		return nil
	}
	return fmt.Errorf("unknown kind %q (want functions, variables, structs or all)", kind)
}

// filterReport keeps only the records (and skipped nodes) of one category.
func filterReport(r *ast.Report, kind string) (*ast.Report, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if kind == "" || kind == "all" {
		return r, nil
	}
	out := &ast.Report{
		Language:  r.Language,
		Functions: []ast.FunctionDefinition{},
		Variables: []ast.VariableDeclaration{},
		Structs:   []ast.StructDefinition{},
		Skipped:   []ast.SkippedNode{},
	}
	var cat ast.Category
	switch kind {
	case "functions":
		out.Functions = r.Functions
		cat = ast.CategoryFunction
	case "variables":
		out.Variables = r.Variables
		cat = ast.CategoryVariable
	case "structs":
		out.Structs = r.Structs
		cat = ast.CategoryStruct
	}
	for _, s := range r.Skipped {
		if s.Category == cat {
			out.Skipped = append(out.Skipped, s)
		}
	}
	return out, nil
}

// writeReport renders a report as a table, one row per record.
func writeReport(w io.Writer, source string, r *ast.Report) error {
	total := len(r.Functions) + len(r.Variables) + len(r.Structs)
	if total == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Name", "Lines", "Detail")
	for _, fn := range r.Functions {
		if err := table.Append([]string{
			string(ast.CategoryFunction), fn.Name, lineRange(fn.StartLine+1, fn.EndLine+1), functionDetail(fn),
		}); err != nil {
			return err
		}
	}
	for _, v := range r.Variables {
		if err := table.Append([]string{
			string(ast.CategoryVariable), v.Name, lineRange(lineOf(source, v.StartByte), lineOf(source, v.EndByte)), variableDetail(v),
		}); err != nil {
			return err
		}
	}
	for _, st := range r.Structs {
		if err := table.Append([]string{
			string(ast.CategoryStruct), st.Name, lineRange(lineOf(source, st.StartByte), lineOf(source, st.EndByte)), "",
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func functionDetail(fn ast.FunctionDefinition) string {
	var b strings.Builder
	if fn.Visibility != nil {
		b.WriteString(*fn.Visibility + " ")
	}
	if fn.IsAsync {
		b.WriteString("async ")
	}
	params := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		param := p.Name
		if p.ParamType != nil {
			param += ": " + *p.ParamType
		}
		if p.DefaultValue != nil {
			param += " = " + *p.DefaultValue
		}
		params = append(params, param)
	}
	b.WriteString("(" + strings.Join(params, ", ") + ")")
	if fn.ReturnType != nil {
		b.WriteString(" -> " + *fn.ReturnType)
	}
	return truncate(b.String(), 80)
}

func variableDetail(v ast.VariableDeclaration) string {
	var parts []string
	if v.IsMutable {
		parts = append(parts, "mut")
	}
	if v.VarType != nil {
		parts = append(parts, *v.VarType)
	}
	if v.Value != nil {
		parts = append(parts, "= "+ast.Snippet(*v.Value, 40))
	}
	return strings.Join(parts, " ")
}

func lineRange(start, end uint) string {
	if start == end {
		return strconv.FormatUint(uint64(start), 10)
	}
	return fmt.Sprintf("%d-%d", start, end)
}

// lineOf returns the 1-indexed line holding byte offset.
func lineOf(source string, offset uint) uint {
	if offset > uint(len(source)) {
		offset = uint(len(source))
	}
	return uint(strings.Count(source[:offset], "\n")) + 1
}

func cmdLocate(e *env, args []string) error {
	pos := positional(args)
	if len(pos) < 2 {
		return fmt.Errorf("usage: uast locate <file> <offset> [--path|--named] [--json]")
	}
	offset, err := strconv.ParseUint(pos[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", pos[1], err)
	}

	parser, tree, err := parseFile(e, pos[0], parseFlag(args, "--lang="))
	if err != nil {
		return err
	}
	defer parser.Close()

	var nodes []*ast.Node
	if hasFlag(args, "--path") {
		nodes = ast.PathTo(tree.Root, uint(offset))
	} else if hasFlag(args, "--named") {
		if n := ast.NamedNodeAt(tree.Root, uint(offset)); n != nil {
			nodes = []*ast.Node{n}
		}
	} else if n := parser.FindNodeAt(tree, uint(offset)); n != nil {
		nodes = []*ast.Node{n}
	}
	if len(nodes) == 0 {
		return fmt.Errorf("offset %d is outside the file (0-%d)", offset, len(tree.Source))
	}

	if hasFlag(args, "--json") {
		out := make([]nodeSummary, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, summarise(n))
		}
		return writeJSON(os.Stdout, out)
	}
	for depth, n := range nodes {
		fmt.Println(formatNode(n, depth))
	}
	return nil
}

// nodeSummary is a node without its subtree.
type nodeSummary struct {
	Kind      string       `json:"kind"`
	Field     string       `json:"field,omitempty"`
	StartByte uint         `json:"start_byte"`
	EndByte   uint         `json:"end_byte"`
	Start     ast.Position `json:"start_position"`
	End       ast.Position `json:"end_position"`
	Named     bool         `json:"named"`
	Text      string       `json:"text"`
}

func summarise(n *ast.Node) nodeSummary {
	return nodeSummary{
		Kind:      n.Kind,
		Field:     n.Field,
		StartByte: n.StartByte,
		EndByte:   n.EndByte,
		Start:     n.StartPosition,
		End:       n.EndPosition,
		Named:     n.IsNamed,
		Text:      n.Text,
	}
}

// formatNode renders one node as "kind [start-end) line:col text".
func formatNode(n *ast.Node, depth int) string {
	kind := n.Kind
	if n.Field != "" {
		kind = n.Field + ":" + kind
	}
	return fmt.Sprintf("%s%s [%d-%d) %d:%d %q",
		strings.Repeat("  ", depth), kind, n.StartByte, n.EndByte,
		n.StartPosition.Line+1, n.StartPosition.Column+1, ast.Snippet(n.Text, 60))
}

func cmdLangs(e *env, args []string) error {
	if hasFlag(args, "--scan") {
		return cmdScan(e, args)
	}

	packs := grammar.DefaultPackRegistry()
	if hasFlag(args, "--json") {
		type langInfo struct {
			Name           string   `json:"name"`
			Display        string   `json:"display_name"`
			Extensions     []string `json:"extensions"`
			GrammarVersion string   `json:"grammar_version"`
		}
		out := make([]langInfo, 0, len(grammar.Languages))
		for _, l := range grammar.Languages {
			info := langInfo{Name: l.String(), Display: l.DisplayName()}
			if p := packs.Get(l); p != nil {
				info.Extensions = p.Meta.Extensions
				info.GrammarVersion = p.GrammarVersion
			}
			out = append(out, info)
		}
		return writeJSON(os.Stdout, out)
	}
	return writeLangs(os.Stdout, packs)
}

func writeLangs(w io.Writer, packs *grammar.PackRegistry) error {
	table := tablewriter.NewWriter(w)
	table.Header("Language", "Name", "Extensions", "Grammar")
	for _, l := range grammar.Languages {
		var exts, ver string
		if p := packs.Get(l); p != nil {
			exts = strings.Join(p.Meta.Extensions, " ")
			ver = p.GrammarVersion
		}
		if err := table.Append([]string{l.DisplayName(), l.String(), exts, ver}); err != nil {
			return err
		}
	}
	return table.Render()
}

// cmdScan counts the project's source files per language.
func cmdScan(e *env, args []string) error {
	matcher, err := ignore.New(e.root, e.cfg.Ignore.Patterns...)
	if err != nil {
		return err
	}
	result, err := grammar.ScanProject(e.root, matcher)
	if err != nil {
		return err
	}
	if hasFlag(args, "--json") {
		return writeJSON(os.Stdout, result.Sorted())
	}
	return writeScan(os.Stdout, result)
}

func writeScan(w io.Writer, result *grammar.ScanResult) error {
	if result.TotalFiles == 0 {
		fmt.Fprintln(w, "No supported source files found.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Language", "Files")
	for _, c := range result.Sorted() {
		if err := table.Append([]string{c.Language.DisplayName(), strconv.Itoa(c.Files)}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d files\n", result.TotalFiles)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
