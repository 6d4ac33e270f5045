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

// Package watch implements a small fsnotify-backed convenience over
// policyengine.LoadDir: recompile the policy set whenever its source
// directory changes and hand the result to the caller over a channel.
// It reacts to filesystem events directly rather than polling on an
// interval, which is what fsnotify is for.
package watch

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/ipl-lang/ipl-engine/core/policyengine"
)

// Update is one successful or failed recompilation delivered by a Watcher.
// Generation is a fresh uuid per reload rather than a plain counter, so a
// consumer that persists or logs it cannot mistake generations from two
// different Watcher instances (e.g. after a process restart) for the same
// sequence.
type Update struct {
	Policy     *policyengine.Policy
	Err        error
	Generation string
}

// Watcher recompiles the *.ipl policy set under Dir every time a file in
// it changes, delivering each result on Updates. Call Start once, Stop
// when done.
type Watcher struct {
	Dir     string
	Opts    []policyengine.Option
	Updates chan Update

	mu   sync.Mutex
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// New returns a Watcher over dir, not yet started.
func New(dir string, opts ...policyengine.Option) *Watcher {
	return &Watcher{
		Dir:     dir,
		Opts:    opts,
		Updates: make(chan Update, 1),
		done:    make(chan struct{}),
	}
}

// Start performs an initial load (delivered as the first Update), then begins
// watching Dir for filesystem events, recompiling and delivering a new
// Update on every change.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.Dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch: watching %s: %w", w.Dir, err)
	}
	w.fsw = fsw

	w.reload()
	go w.loop()
	return nil
}

// Stop releases the underlying filesystem watch. It is safe to call once.
func (w *Watcher) Stop() {
	close(w.done)
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Info.Printf("watch: detected change in %s, recompiling policy set", w.Dir)
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Error.Printf("watch: fsnotify error watching %s: %v", w.Dir, err)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	pol, err := policyengine.LoadDir(w.Dir, w.Opts...)
	update := Update{Policy: pol, Err: err, Generation: uuid.NewString()}
	if err != nil {
		logger.Error.Printf("watch: failed to compile policies from %s: %v", w.Dir, err)
	}

	select {
	case w.Updates <- update:
	default:
		// A consumer that isn't draining Updates promptly only ever sees
		// the latest compiled policy, which is the correct behavior for a
		// hot-reload channel: drop the stale pending update, not the new
		// one.
		select {
		case <-w.Updates:
		default:
		}
		w.Updates <- update
	}
}
