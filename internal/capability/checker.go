package capability

import (
	"bytes"
	_ "embed"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	mast "github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

//go:embed safety.mg
var goSafetyPolicy string

// SafetyConfig selects which package families a Go capability may import.
type SafetyConfig struct {
	AllowFileSystem bool
	AllowNetworking bool
	AllowExec       bool
	ExtraPackages   []string
}

// SafetyChecker validates Go capability sources against a Mangle policy.
type SafetyChecker struct {
	config      SafetyConfig
	program     *analysis.ProgramInfo
	allowedPkgs []string
	deniedCalls []string
}

// SafetyReport contains the results of a safety check.
type SafetyReport struct {
	Safe           bool
	Violations     []SafetyViolation
	ImportsChecked int
	CallsChecked   int
	Score          float64 // 0.0 = unsafe, 1.0 = safe
}

// Summary joins the violation descriptions on one line.
func (r *SafetyReport) Summary() string {
	if r == nil || len(r.Violations) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		if v.Location != "" {
			parts = append(parts, fmt.Sprintf("%s (%s): %s", v.Type, v.Location, v.Description))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", v.Type, v.Description))
		}
	}
	return strings.Join(parts, "; ")
}

func (r *SafetyReport) fail(vType ViolationType, location, msg string) *SafetyReport {
	r.Safe = false
	r.Score = 0.0
	r.Violations = append(r.Violations, SafetyViolation{
		Type:        vType,
		Location:    location,
		Description: msg,
	})
	return r
}

func newSafetyReport() *SafetyReport {
	return &SafetyReport{Safe: true, Score: 1.0}
}

// SafetyViolation describes a single safety issue.
type SafetyViolation struct {
	Type        ViolationType
	Location    string // function name or logical identifier
	Description string
}

// ViolationType categorizes violations.
type ViolationType int

const (
	ViolationForbiddenImport ViolationType = iota
	ViolationDangerousCall
	ViolationPanic
	ViolationParseError
	ViolationPolicy
)

func (v ViolationType) String() string {
	switch v {
	case ViolationForbiddenImport:
		return "forbidden_import"
	case ViolationDangerousCall:
		return "dangerous_call"
	case ViolationPanic:
		return "panic"
	case ViolationParseError:
		return "parse_error"
	case ViolationPolicy:
		return "policy_violation"
	default:
		return "unknown"
	}
}

// NewSafetyChecker parses and analyzes the embedded policy.
func NewSafetyChecker(cfg SafetyConfig) (*SafetyChecker, error) {
	unit, err := parse.Unit(strings.NewReader(goSafetyPolicy))
	if err != nil {
		return nil, fmt.Errorf("failed to parse safety policy: %w", err)
	}
	program, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze safety policy: %w", err)
	}

	sc := &SafetyChecker{
		config:      cfg,
		program:     program,
		deniedCalls: []string{"os.Exit", "runtime.Goexit", "syscall.Exit"},
	}
	sc.allowedPkgs = sc.buildAllowedPackages()
	return sc, nil
}

// AllowedPackages returns the sorted import allow-list.
func (sc *SafetyChecker) AllowedPackages() []string {
	out := make([]string, len(sc.allowedPkgs))
	copy(out, sc.allowedPkgs)
	return out
}

// Check parses a Go source, extracts import and call facts, and evaluates
// the policy over them.
func (sc *SafetyChecker) Check(code string) *SafetyReport {
	report := newSafetyReport()

	facts, err := extractASTFacts(code)
	if err != nil {
		return report.fail(ViolationParseError, "", fmt.Sprintf("failed to parse code: %v", err))
	}
	for _, f := range facts {
		switch f.Predicate.Symbol {
		case "ast_import":
			report.ImportsChecked++
		case "ast_call":
			report.CallsChecked++
		}
	}

	store := factstore.NewSimpleInMemoryStore()
	for _, f := range facts {
		store.Add(f)
	}
	for _, pkg := range sc.allowedPkgs {
		store.Add(mast.NewAtom("allowed_package", mast.String(pkg)))
	}
	for _, call := range sc.deniedCalls {
		store.Add(mast.NewAtom("denied_call", mast.String(call)))
	}

	if _, err := mengine.EvalProgramWithStats(sc.program, store); err != nil {
		return report.fail(ViolationPolicy, "", fmt.Sprintf("safety policy evaluation failed: %v", err))
	}

	for _, pkg := range queryStrings(store, "forbidden_import", 1) {
		report.fail(ViolationForbiddenImport, "", fmt.Sprintf("import %q is not on the allowlist", pkg[0]))
	}
	for _, row := range queryStrings(store, "panic_call", 1) {
		report.fail(ViolationPanic, row[0], "panic is not permitted in capabilities; return an error instead")
	}
	for _, row := range queryStrings(store, "dangerous_call", 2) {
		report.fail(ViolationDangerousCall, row[0], fmt.Sprintf("call to %s is not permitted", row[1]))
	}

	return report
}

// queryStrings returns the string arguments of every derived fact of a
// predicate, sorted for stable reports.
func queryStrings(store factstore.FactStore, predicate string, arity int) [][]string {
	var rows [][]string
	_ = store.GetFacts(mast.NewQuery(mast.PredicateSym{Symbol: predicate, Arity: arity}), func(atom mast.Atom) error {
		row := make([]string, len(atom.Args))
		for i, arg := range atom.Args {
			if c, ok := arg.(mast.Constant); ok {
				row[i] = c.Symbol
			} else {
				row[i] = fmt.Sprint(arg)
			}
		}
		rows = append(rows, row)
		return nil
	})
	sort.Slice(rows, func(i, j int) bool {
		return strings.Join(rows[i], "\x00") < strings.Join(rows[j], "\x00")
	})
	return rows
}

func (sc *SafetyChecker) buildAllowedPackages() []string {
	base := []string{
		"bytes",
		"bufio",
		"context",
		"encoding/base64",
		"encoding/csv",
		"encoding/hex",
		"encoding/json",
		"errors",
		"fmt",
		"io",
		"math",
		"math/big",
		"math/rand",
		"regexp",
		"sort",
		"strconv",
		"strings",
		"sync",
		"text/template",
		"time",
		"unicode",
		"unicode/utf8",
		"net/url",
	}

	if sc.config.AllowFileSystem {
		base = append(base, "os", "path/filepath", "io/fs", "io/ioutil", "path")
	}
	if sc.config.AllowNetworking {
		base = append(base, "net", "net/http", "net/url")
	}
	if sc.config.AllowExec {
		base = append(base, "os/exec")
	}
	base = append(base, sc.config.ExtraPackages...)

	seen := make(map[string]struct{}, len(base))
	allowed := make([]string, 0, len(base))
	for _, pkg := range base {
		if _, ok := seen[pkg]; ok {
			continue
		}
		seen[pkg] = struct{}{}
		allowed = append(allowed, pkg)
	}
	sort.Strings(allowed)
	return allowed
}

// extractASTFacts parses Go source and emits structural facts for the policy.
func extractASTFacts(sourceCode string) ([]mast.Atom, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "capability.go", sourceCode, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	emitter := &astFactEmitter{
		fset:     fset,
		fileName: fset.File(file.Pos()).Name(),
	}
	emitter.emitImports(file)
	ast.Walk(&astFactVisitor{emitter: emitter}, file)

	return emitter.facts, nil
}

// astFactEmitter walks an AST and emits facts for the safety policy.
type astFactEmitter struct {
	fset       *token.FileSet
	fileName   string
	currentFcn string
	facts      []mast.Atom
}

func (e *astFactEmitter) emitImports(file *ast.File) {
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		e.facts = append(e.facts, mast.NewAtom("ast_import", mast.String(e.fileName), mast.String(importPath)))
	}
}

func (e *astFactEmitter) emitCall(call *ast.CallExpr) {
	fn := e.currentFcn
	if fn == "" {
		fn = "<package>"
	}
	e.facts = append(e.facts, mast.NewAtom("ast_call", mast.String(fn), mast.String(e.exprToString(call.Fun))))
}

func (e *astFactEmitter) exprToString(expr ast.Expr) string {
	var buf bytes.Buffer
	_ = printer.Fprint(&buf, e.fset, expr)
	return buf.String()
}

type astFactVisitor struct {
	emitter *astFactEmitter
}

func (v *astFactVisitor) Visit(node ast.Node) ast.Visitor {
	if node == nil {
		return nil
	}

	switch n := node.(type) {
	case *ast.FuncDecl:
		prev := v.emitter.currentFcn
		v.emitter.currentFcn = n.Name.Name
		if n.Body != nil {
			ast.Walk(v, n.Body)
		}
		v.emitter.currentFcn = prev
		return nil
	case *ast.FuncLit:
		prev := v.emitter.currentFcn
		pos := v.emitter.fset.Position(n.Pos())
		v.emitter.currentFcn = fmt.Sprintf("func_literal_%d", pos.Line)
		if n.Body != nil {
			ast.Walk(v, n.Body)
		}
		v.emitter.currentFcn = prev
		return nil
	case *ast.CallExpr:
		v.emitter.emitCall(n)
	}

	return v
}
