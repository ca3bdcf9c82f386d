/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package safego

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/datazip-inc/resttap/utils/logger"
)

var startTime time.Time

// Recovery is deferred at process entry points; it logs the panic with its
// stack trace and exits when asked to.
func Recovery(exit bool) {
	err := recover()
	if err != nil {
		logger.Error(err)
		// capture stacks trace
		for _, str := range strings.Split(string(debug.Stack()), "\n") {
			logger.Error(strings.ReplaceAll(str, "\t", ""))
		}
	}
	if exit {
		logger.Infof("Time of execution %v", time.Since(startTime).String())
		if err != nil {
			os.Exit(1)
		}
	}
}

// RecoverInto converts a panic in the calling goroutine into an error stored
// in err. Must be deferred directly.
func RecoverInto(err *error, scope string) {
	r := recover()
	if r == nil {
		return
	}
	logger.Errorf("panic recovered in %s: %v\n%s", scope, r, debug.Stack())
	panicErr := fmt.Errorf("panic recovered in %s: %v", scope, r)
	if *err != nil {
		*err = fmt.Errorf("%s: prev error: %w", panicErr, *err)
		return
	}
	*err = panicErr
}

// Go runs fn and returns its error, turning panics into errors. Used for
// functions handed to errgroup.
func Go(scope string, fn func() error) func() error {
	return func() (err error) {
		defer RecoverInto(&err, scope)
		return fn()
	}
}

func init() {
	startTime = time.Now()
}
