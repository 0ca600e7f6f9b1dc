// Copyright 2025 Kadir Pekel
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

package main

import (
	"context"
	"fmt"

	"github.com/songhahaha66/PaperAgent-sub000/internal/config"
)

// tokenAuthenticator implements transport.Authenticator against the
// config file's auth_tokens map. Real session/credential management
// is an out-of-scope HTTP collaborator (spec §1); this is the minimal
// stand-in needed to drive the handshake end to end.
type tokenAuthenticator struct {
	cfg *config.Config
}

func (a tokenAuthenticator) Authenticate(ctx context.Context, workID, token string) (string, error) {
	userID, ok := a.cfg.AuthTokens[token]
	if !ok {
		return "", fmt.Errorf("auth: unrecognized token")
	}
	if _, ok := a.cfg.Users[userID]; !ok {
		return "", fmt.Errorf("auth: user %q has no role configuration", userID)
	}
	return userID, nil
}
