//
// Copyright (C) 2020 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
// Andreas Schade <san@zurich.ibm.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package policyengine implements the rule-set driver: given a loaded
// policy and a trace, it runs model enumeration over every raise rule in
// source order, localizes the ranges of every satisfying model into
// dotted-path addresses, and assembles the ordered AnalysisResult.
// Policy.Analyze and Policy.AnalyzePending are the entry points a host
// calls directly.
package policyengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sysflow-telemetry/sf-apis/go/logger"
	"golang.org/x/sync/errgroup"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/lang/parser"
	"github.com/ipl-lang/ipl-engine/core/lang/scope"
	"github.com/ipl-lang/ipl-engine/core/pattern"
	"github.com/ipl-lang/ipl-engine/core/policyengine/config"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine/cache"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine/enum"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine/monitor"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// reservedParam is the one forbidden policy-parameter name: rules already
// reach policy parameters through the reserved `input` identifier, so a
// caller-supplied parameter named "data" would collide with the engine's
// own reserved vocabulary.
const reservedParam = "data"

// Range, Range.Address, and ParseAddress live in range.go.
// Keyed by monitor.Keyed is implemented below by ErrorRecord.

// ErrorRecord is one rule-fired error: the raised constructor's
// positional and keyword arguments,
// its localized ranges, and a key stable across re-analysis of a growing
// trace.
type ErrorRecord struct {
	RuleIndex int
	Args      []any
	Kwargs    map[string]any
	Ranges    []Range
	Key       string
}

// ResultKey implements monitor.Keyed.
func (e ErrorRecord) ResultKey() string { return e.Key }

// ObjectIndices implements monitor.Keyed: every trace index referenced by
// one of the error's ranges that carries an ObjectID we could resolve.
func (e ErrorRecord) ObjectIndices() []int {
	out := make([]int, 0, len(e.Ranges))
	for _, r := range e.Ranges {
		if r.objectIndex >= 0 {
			out = append(out, r.objectIndex)
		}
	}
	return out
}

// AnalysisResult is the ordered outcome of one Analyze/AnalyzePending call.
type AnalysisResult struct {
	RunID     string
	Errors    []ErrorRecord
	Cancelled bool
}

// Policy is a loaded, linked rule set ready to analyze traces. The zero
// value is not usable; construct with Load or LoadDir.
type Policy struct {
	raises   []*ast.RaiseStmt
	globals  *scope.Global
	patterns *pattern.Registry
	builtins map[string]engine.Builtin
	cache    *cache.Cache
	cfg      config.Config
	monitor  *monitor.Monitor
}

// Option configures a Policy at Load time.
type Option func(*Policy)

// WithBuiltins overrides the free-function registry (default: none — the
// caller is expected to pass core/stdlib.Builtins() explicitly, keeping
// this package free of a hard dependency on any particular detector set).
func WithBuiltins(b map[string]engine.Builtin) Option {
	return func(p *Policy) { p.builtins = b }
}

// WithPatterns overrides the semantic-pattern value-reference registry.
func WithPatterns(reg *pattern.Registry) Option {
	return func(p *Policy) { p.patterns = reg }
}

// WithConfig overrides the policy's runtime configuration.
func WithConfig(cfg config.Config) Option {
	return func(p *Policy) { p.cfg = cfg }
}

// WithCache overrides the predicate cache (default: a fresh cache.New()).
func WithCache(c *cache.Cache) Option {
	return func(p *Policy) { p.cache = c }
}

// Load parses and links a single policy source file, returning a Policy
// ready for Analyze/AnalyzePending, or a *parser.LoadError aggregate
// describing every loading diagnostic found (scope resolution errors are
// converted into the same type).
func Load(source, file string, opts ...Option) (*Policy, error) {
	return load([]sourceFile{{source, file}}, opts...)
}

// LoadDir parses and links every *.ipl file in dir as one combined
// policy, sharing a single Global scope across files so a predicate
// defined in one file is visible to a rule in another.
func LoadDir(dir string, opts ...Option) (*Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("policyengine: reading policy directory %s: %w", dir, err)
	}
	var files []sourceFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".ipl" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("policyengine: reading policy file %s: %w", path, err)
		}
		files = append(files, sourceFile{string(data), path})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("policyengine: no .ipl policy files found in %s", dir)
	}
	return load(files, opts...)
}

type sourceFile struct {
	source, file string
}

func load(files []sourceFile, opts ...Option) (*Policy, error) {
	var allStatements []ast.Stmt
	var loadErrs []parser.SourceError
	var sources []string

	for _, f := range files {
		pol, err := parser.Parse(f.source, f.file)
		if err != nil {
			if le, ok := err.(*parser.LoadError); ok {
				loadErrs = append(loadErrs, le.Errors...)
				sources = append(sources, f.source)
				continue
			}
			return nil, err
		}
		allStatements = append(allStatements, pol.Statements...)
	}
	if len(loadErrs) > 0 {
		return nil, &parser.LoadError{Errors: loadErrs, Source: strings.Join(sources, "\n")}
	}

	combined := &ast.Policy{Statements: allStatements}
	globals, err := scope.Resolve(combined)
	if err != nil {
		if se, ok := err.(scope.Errors); ok {
			errs := make([]parser.SourceError, len(se))
			for i, e := range se {
				errs[i] = parser.SourceError{File: e.File, Line: e.Line, Column: e.Column, Message: e.Message}
			}
			return nil, &parser.LoadError{Errors: errs}
		}
		return nil, err
	}

	var raises []*ast.RaiseStmt
	for _, s := range allStatements {
		if r, ok := s.(*ast.RaiseStmt); ok {
			raises = append(raises, r)
		}
	}

	p := &Policy{
		raises:   raises,
		globals:  globals,
		patterns: pattern.NewRegistry(),
		builtins: map[string]engine.Builtin{},
		cache:    cache.New(),
		cfg:      config.Default(),
		monitor:  monitor.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.CacheMode == config.CacheOn {
		p.builtins = cachedBuiltins(p.cache, p.builtins)
	}
	logger.Trace.Printf("Compiled policy set: %d rule(s), %d predicate(s), %d constant(s)",
		len(p.raises), len(globals.Predicates), len(globals.Consts))
	return p, nil
}

// cachedBuiltins wraps every builtin in c's memoization: each
// wrapper is Marked once here, so repeated calls with the same
// canonicalized arguments within or across rule evaluations collapse to
// one upstream call. Builtins that are cheap and pure (len, min, max, ...)
// pay only a canonicalization cost for this; the cache exists for the
// I/O-bound detectors a host application wires in as builtins of its own.
func cachedBuiltins(c *cache.Cache, builtins map[string]engine.Builtin) map[string]engine.Builtin {
	out := make(map[string]engine.Builtin, len(builtins))
	for name, fn := range builtins {
		fn := fn
		marked := c.Mark(func(args []any) (any, error) { return fn(args) })
		out[name] = func(args []any) (any, error) { return c.Call(marked, args) }
	}
	return out
}

// Analyze runs every rule of p against tr in source order, returning the
// full (non-deduplicated) set of errors found.
// policyParams is exposed to rule bodies as the reserved `input` identifier
// and must not itself contain a key named "data", which is reserved.
func (p *Policy) Analyze(ctx context.Context, tr *trace.Trace, policyParams map[string]any) (*AnalysisResult, error) {
	if _, forbidden := policyParams[reservedParam]; forbidden {
		return nil, fmt.Errorf("policyengine: reserved policy parameter name %q is forbidden", reservedParam)
	}
	if in := tr.Input(); in != nil && policyParams != nil {
		in.Params = policyParams
	}
	res, err := p.analyze(ctx, tr)
	if err != nil {
		return nil, err
	}
	if p.cfg.RaiseUnhandled && len(res.Errors) > 0 {
		return res, &UnhandledError{Result: res}
	}
	return res, nil
}

// UnhandledError is returned alongside the result when Config.RaiseUnhandled
// is set and an analysis produced a non-empty errors list, converting
// rule-fired errors into a control-flow error for callers that treat any
// violation as fatal.
type UnhandledError struct {
	Result *AnalysisResult
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("policyengine: %d unhandled policy violation(s)", len(e.Result.Errors))
}

// AnalyzePending runs a full analysis over pastData followed by
// pendingData (both trace JSON), then filters the result to errors that
// touch at least one event at or after the boundary between the two, or
// that carry no object-level ranges at all.
func (p *Policy) AnalyzePending(ctx context.Context, pastData, pendingData []byte, policyParams map[string]any) (*AnalysisResult, error) {
	combined, firstPending, err := trace.ConcatJSON(pastData, pendingData)
	if err != nil {
		return nil, err
	}
	tr, err := trace.Parse(combined, policyParams)
	if err != nil {
		return nil, err
	}
	res, err := p.Analyze(ctx, tr, policyParams)
	if err != nil {
		return nil, err
	}
	res.Errors = monitor.FilterPending(res.Errors, firstPending)
	return res, nil
}

// FilterNew deduplicates res.Errors against every key p has already
// returned from a previous FilterNew call, implementing the incremental
// dedup on top of one already-computed AnalysisResult.
func (p *Policy) FilterNew(res *AnalysisResult) *AnalysisResult {
	return &AnalysisResult{
		RunID:     res.RunID,
		Cancelled: res.Cancelled,
		Errors:    monitor.Filter(p.monitor, res.Errors),
	}
}

// ResetMonitor clears the incremental dedup state, so the next FilterNew
// call behaves as if this Policy had never analyzed a trace before.
func (p *Policy) ResetMonitor() { p.monitor.Reset() }

func (p *Policy) analyze(ctx context.Context, tr *trace.Trace) (*AnalysisResult, error) {
	loc := newLocalizer(tr)
	results := make([][]ErrorRecord, len(p.raises))

	concurrency := p.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, raise := range p.raises {
		i, raise := i, raise
		g.Go(func() error {
			errs, err := p.evalRule(gctx, tr, loc, i, raise)
			if err != nil {
				return err
			}
			results[i] = errs
			return nil
		})
	}
	cancelled := false
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			cancelled = true
		} else {
			return nil, err
		}
	}

	var all []ErrorRecord
	for _, errs := range results {
		all = append(all, errs...)
	}
	return &AnalysisResult{RunID: uuid.NewString(), Errors: all, Cancelled: cancelled}, nil
}

// evalRule runs model enumeration over one rule's body and builds one
// ErrorRecord per satisfying model, in the order models are discovered
//.
func (p *Policy) evalRule(ctx context.Context, tr *trace.Trace, loc *localizer, ruleIndex int, raise *ast.RaiseStmt) ([]ErrorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil
	}
	engCtx := enum.NewContext(tr, p.globals, p.builtins, p.patterns)
	engCtx.Ctx = ctx

	trueModels, _, _, err := enum.EnumerateModels(engCtx, raise.Body, engine.Store{}, -1)
	if err != nil {
		return nil, fmt.Errorf("policyengine: rule %d: %w", ruleIndex, err)
	}

	errs := make([]ErrorRecord, 0, len(trueModels))
	for _, m := range trueModels {
		rec, err := p.buildError(engCtx, ruleIndex, raise, m, loc)
		if err != nil {
			return nil, err
		}
		errs = append(errs, rec)
	}
	return errs, nil
}

func (p *Policy) buildError(ctx *engine.Context, ruleIndex int, raise *ast.RaiseStmt, model enum.Model, loc *localizer) (ErrorRecord, error) {
	var args []any
	var kwargs map[string]any
	marks := append([]engine.Mark{}, model.Marks...)

	if raise.Error.Literal != "" {
		args = []any{raise.Error.Literal}
	} else {
		it := engine.NewInterpreter(ctx, model.Store)
		if call, ok := raise.Error.Expr.(*ast.CallExpr); ok {
			for _, a := range call.Args {
				v, err := it.Eval(a.Value)
				if err != nil {
					return ErrorRecord{}, fmt.Errorf("policyengine: rule %d: error constructor: %w", ruleIndex, err)
				}
				if a.Name == "" {
					args = append(args, v)
				} else {
					if kwargs == nil {
						kwargs = map[string]any{}
					}
					kwargs[a.Name] = v
				}
			}
		} else {
			v, err := it.Eval(raise.Error.Expr)
			if err != nil {
				return ErrorRecord{}, fmt.Errorf("policyengine: rule %d: error constructor: %w", ruleIndex, err)
			}
			args = []any{v}
		}
		marks = append(marks, it.Marks()...)
	}

	ranges := make([]Range, 0, len(marks))
	for _, mk := range marks {
		r, ok := loc.Localize(mk)
		if !ok {
			continue
		}
		ranges = append(ranges, r)
	}

	// Every variable-bound object is itself an object-level range,
	// in variable-name order for determinism.
	type binding struct {
		name string
		ev   trace.Event
	}
	var bound []binding
	for decl, v := range model.Store {
		if ev, ok := v.(trace.Event); ok {
			bound = append(bound, binding{decl.Name, ev})
		}
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].name < bound[j].name })
	for _, b := range bound {
		if hasObjectRange(ranges, b.ev.ID()) {
			continue
		}
		r, ok := loc.Localize(engine.Mark{Object: b.ev, Start: -1, End: -1})
		if !ok {
			continue
		}
		ranges = append(ranges, r)
	}

	return ErrorRecord{
		RuleIndex: ruleIndex,
		Args:      args,
		Kwargs:    kwargs,
		Ranges:    ranges,
		Key:       resultKey(ruleIndex, model.Store),
	}, nil
}

func hasObjectRange(ranges []Range, id trace.ObjectID) bool {
	for _, r := range ranges {
		if r.ObjectID == id && !r.HasOffsets() {
			return true
		}
	}
	return false
}

// resultKey derives the stable key: the rule index plus the sorted
// (variable_name, trace_index_or_object_key) pairs of the model's
// assignment, hashed with xxhash for a short, stable identifier.
func resultKey(ruleIndex int, store engine.Store) string {
	type pair struct {
		name string
		key  string
	}
	pairs := make([]pair, 0, len(store))
	for decl, v := range store {
		pairs = append(pairs, pair{name: decl.Name, key: assignmentKey(v)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", ruleIndex)
	for _, pr := range pairs {
		fmt.Fprintf(&sb, "%s=%s;", pr.name, pr.key)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(sb.String()))
}

func assignmentKey(v any) string {
	if ev, ok := v.(trace.Event); ok {
		return fmt.Sprintf("idx:%d", ev.Index())
	}
	return fmt.Sprintf("val:%v", v)
}
