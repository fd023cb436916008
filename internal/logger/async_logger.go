// Copyright 2025 Google LLC
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

package logger

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AsyncLogger decouples log writers from lumberjack's rotation and disk
// I/O: Write copies the caller's buffer and hands it to a single
// background goroutine, so a slow or rotating disk never blocks a
// request path holding a lock while it logs. Close drains the buffered
// channel before returning so no message is lost on shutdown.
type AsyncLogger struct {
	lj    *lumberjack.Logger
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
	first error
}

// NewAsyncLogger starts the background writer goroutine. bufferSize
// bounds how many pending writes may queue before Write starts dropping
// messages (reported to stderr) rather than blocking the caller.
func NewAsyncLogger(lj *lumberjack.Logger, bufferSize int) *AsyncLogger {
	a := &AsyncLogger{
		lj:   lj,
		ch:   make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *AsyncLogger) run() {
	defer a.wg.Done()
	for msg := range a.ch {
		if _, err := a.lj.Write(msg); err != nil && a.first == nil {
			a.first = err
		}
	}
	close(a.done)
}

// Write implements io.Writer. p is copied before queuing since the
// caller may reuse its buffer once Write returns.
func (a *AsyncLogger) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case a.ch <- buf:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close stops accepting new writes, waits for every already-queued
// message to reach the underlying lumberjack.Logger, then closes it.
func (a *AsyncLogger) Close() error {
	a.once.Do(func() { close(a.ch) })
	<-a.done
	if err := a.lj.Close(); err != nil && a.first == nil {
		a.first = err
	}
	return a.first
}
