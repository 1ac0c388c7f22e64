// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package api

import "errors"

// ErrUnknownAction indicates a user action the admin API does not support.
var ErrUnknownAction = errors.New("unknown user action")
