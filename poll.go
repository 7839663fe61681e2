// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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


package mfreader

import (
	"context"
	"fmt"
	"time"
)

// WaitForCard polls SelectCard until a card answers, making at most attempts
// calls with interval between them. It returns "" and false when no card
// appeared, and stops early with the context's error when ctx is done or with
// the link error when SelectCard fails.
func (r *Reader) WaitForCard(ctx context.Context, attempts int, interval time.Duration) (string, bool, error) {
	if attempts < 1 {
		return "", false, fmt.Errorf("%w: attempts must be at least 1, got %d", ErrInvalidParameter, attempts)
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		uid, ok, err := r.SelectCard(ctx)
		if err != nil {
			return "", false, err
		}
		if ok {
			debugf("card %s found on attempt %d/%d", uid, attempt, attempts)
			return uid, true, nil
		}
		if attempt < attempts {
			if err := r.sleep(ctx, interval); err != nil {
				return "", false, err
			}
		}
	}
	return "", false, nil
}
