// Copyright 2024 The Cockroach Authors
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

package openaddr

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// captureTrace runs fn with the standard logger at Debug level and returns the
// messages logged while it ran.
func captureTrace(t *testing.T, fn func()) []string {
	logger := log.StandardLogger()
	prevHooks := logger.ReplaceHooks(make(log.LevelHooks))
	prevLevel := logger.GetLevel()
	prevOut := logger.Out
	defer func() {
		logger.ReplaceHooks(prevHooks)
		logger.SetLevel(prevLevel)
		logger.SetOutput(prevOut)
	}()

	hook := test.NewGlobal()
	logger.SetLevel(log.DebugLevel)
	logger.SetOutput(io.Discard)

	fn()

	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level != log.DebugLevel {
			t.Fatalf("unexpected %s entry: %s", e.Level, e.Message)
		}
		msgs = append(msgs, e.Message)
	}
	return msgs
}

// traceWorkload probes, inserts, grows and removes with backward shifting.
func traceWorkload(t *testing.T) {
	d := newTestDesc(t, identityHash, WithThresholds[entry, uint64](80, 0))
	tbl := newTestTable(t, d, 8)
	for _, k := range []uint64{6, 14} {
		item := entry{key: k, used: true}
		if tbl.Insert(d, &item) == nil {
			t.Fatalf("insert %d failed", k)
		}
	}
	if _, ok := tbl.Delete(d, 6); !ok {
		t.Fatalf("delete 6 failed")
	}

	d = newTestDesc(t, HashUint64)
	tbl = newTestTable(t, d, 4)
	for k := uint64(1); k <= 3; k++ {
		item := entry{key: k, used: true}
		if tbl.Insert(d, &item) == nil {
			t.Fatalf("insert %d failed", k)
		}
	}
}
