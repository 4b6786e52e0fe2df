// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
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

package wasmhost

import "fmt"

// TrapError reports a guest protocol violation: an invalid or wrong-variant
// handle, or an out-of-bounds guest memory access. Host functions panic
// with a *TrapError (or let one propagate from a bounds check), and wazero
// converts the panic into a trap that aborts the guest invocation without
// unwinding any host-side storage effects already committed.
type TrapError struct {
	Reason string
}

func (e *TrapError) Error() string { return fmt.Sprintf("wasmhost: trap: %s", e.Reason) }

func trapf(format string, args ...any) {
	panic(&TrapError{Reason: fmt.Sprintf(format, args...)})
}
