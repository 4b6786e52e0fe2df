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

//go:build wasm

// Command notepad is a minimal guest application exercising the full
// get_state/cas_get/cas_put/update_state cycle: a one-byte counter that
// increments by one each time it runs. It is a direct port of the
// original's applications/notepad sample, built against [guestsdk] instead
// of the original's no_std Rust wasmlib.
package main

import "github.com/creachadair/wasmjournal/guestsdk"

// main must exist (and stay empty) because the package built for GOOS=wasip1
// is a command and the toolchain still emits the WASI "_start" entry point
// that invokes it; the real work runs in the separately named export below,
// which the host calls explicitly instead of relying on _start.
func main() {}

//go:wasmexport main
func run() {
	state, hasState := guestsdk.GetState()

	ctr := byte(10)
	if hasState {
		guestsdk.Output("got prior state\n")
		data := guestsdk.ReadAll(guestsdk.CASGet(state))
		if len(data) > 0 {
			ctr = data[0] + 1
		}
	} else {
		guestsdk.Output("no prior state\n")
	}

	newState := guestsdk.CASPut([]byte{ctr}, nil)
	guestsdk.UpdateState(newState)
	guestsdk.Output("wrote new state; run me again\n")
}
