// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package runtime

import "os"

// ProcessEnv is the Env bridge backed by the host process environment.
// Scripts only ever read through it.
func ProcessEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}
