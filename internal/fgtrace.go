// Copyright 2023 UMH Systems GmbH
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

package internal

import (
	"net/http"
	"time"

	"github.com/felixge/fgtrace"
	"go.uber.org/zap"
)

// InitFgtrace serves goroutine traces on addr under /debug/fgtrace.
// It returns the server so it can be shut down together with the rest of the process,
// or nil when tracing is disabled.
func InitFgtrace(enabled bool, addr string) *http.Server {
	if !enabled {
		zap.S().Debugf("Debug Tracing is disabled. Set DEBUG_ENABLE_FGTRACE to true to enable.")
		return nil
	}
	zap.S().Warnf("fgtrace is enabled. This might hurt performance !. Set DEBUG_ENABLE_FGTRACE to false to disable.")

	mux := http.NewServeMux()
	mux.Handle("/debug/fgtrace", fgtrace.Config{})
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		errX := server.ListenAndServe()
		if errX != nil && errX != http.ErrServerClosed {
			zap.S().Errorf("Failed to start fgtrace: %s", errX)
		}
	}()
	return server
}
