// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fingerprint

import "errors"

var (
	// ErrSourceUnavailable is returned when a local service tree does not
	// exist or cannot be read. Remote lookup failures are NOT reported with
	// this error; they degrade to FingerprintUnknown instead.
	ErrSourceUnavailable = errors.New("fingerprint source unavailable")

	// ErrInvalidUnit is returned when a ServiceUnit violates its mode
	// invariant (e.g. Local mode without LocalPath).
	ErrInvalidUnit = errors.New("invalid service unit")

	// ErrInvalidRemoteURL is returned when a remote URL cannot be parsed
	// into an owner/repository pair.
	ErrInvalidRemoteURL = errors.New("invalid remote repository URL")
)
