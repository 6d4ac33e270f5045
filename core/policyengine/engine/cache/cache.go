//
// Copyright (C) 2020 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
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

// Package cache implements the predicate cache: a memoization layer in
// front of external, potentially I/O-bound predicates (detectors,
// classifiers, HTTP-backed operations), keyed by function identity and
// canonicalized arguments. golang.org/x/sync/singleflight supplies the
// compute-once semantics: concurrent callers racing on the same key
// collapse into a single upstream call instead of each paying for it.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Func is an external, cacheable callee: a detector, classifier, or other
// side-effect-free (from the policy's point of view) operation.
type Func func(args []any) (any, error)

// Marked is a Func registered with Mark: the cacheable marker expressed
// as a distinct handle type rather than a runtime attribute, since a Go
// func value cannot carry metadata of its own (and its code pointer is
// shared by every closure built from the same literal, so it cannot serve
// as an identity either). The id is what keys this function's entries,
// never the func value.
type Marked struct {
	id uint64
	fn Func
}

// Cache memoizes calls to Marked funcs. The zero value is not usable; use
// New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]any
	nextID  uint64
	group   singleflight.Group
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]any),
	}
}

// Mark registers f as cacheable, returning the handle Call memoizes
// through. Each Mark call allocates a fresh identity, so two closures over
// the same code are still cached independently.
func (c *Cache) Mark(f Func) *Marked {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return &Marked{id: c.nextID, fn: f}
}

// Call invokes f(args), memoizing the result under (f's identity,
// canonicalize(args)) when f is a *Marked handle produced by Mark. Any
// plain Func bypasses the cache and is called directly every time.
func (c *Cache) Call(f any, args []any) (any, error) {
	var m *Marked
	switch fn := f.(type) {
	case *Marked:
		m = fn
	case Func:
		return fn(args)
	case func(args []any) (any, error):
		return fn(args)
	default:
		return nil, fmt.Errorf("cache: %T is not callable", f)
	}
	key := c.key(m, args)

	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := m.fn(args)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = res
		c.mu.Unlock()
		return res, nil
	})
	return v, err
}

// AsyncResult is the outcome of a CallAsync.
type AsyncResult struct {
	Value any
	Err   error
}

// CallAsync runs Call on a goroutine, delivering its result on the
// returned channel, so both synchronous and asynchronous callees share one
// memoization layer. The Call itself always runs to completion; if ctx is
// already cancelled when it returns, the result may be dropped instead of
// delivered.
func (c *Cache) CallAsync(ctx context.Context, f any, args []any) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		v, err := c.Call(f, args)
		select {
		case out <- AsyncResult{Value: v, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}

func (c *Cache) key(m *Marked, args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = canonicalize(a)
	}
	return fmt.Sprintf("%d(%s)", m.id, strings.Join(parts, ","))
}

// canonicalize renders an argument into its cache-key form: primitives by
// value, lists as a tuple of canonicalized elements, dicts as a sorted
// tuple of (key, canonicalized-value) pairs, and everything else (trace
// entities, detector handles) by pointer identity.
func canonicalize(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return fmt.Sprintf("b:%v", x)
	case float64:
		return fmt.Sprintf("f:%v", x)
	case int:
		return fmt.Sprintf("f:%v", float64(x))
	case string:
		return fmt.Sprintf("s:%q", x)
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			parts[i] = canonicalize(el)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q:%s", k, canonicalize(x[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("id:%p", x)
	}
}
