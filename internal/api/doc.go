// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

/*
Package api provides the operational HTTP surface of the relay.

The bot itself talks to the messaging platform; this package only serves
operators:

  - /healthz: liveness with a store read check
  - /metrics: Prometheus exposition
  - /api/v1/stats, /api/v1/top: read-only relay statistics
  - /api/v1/admin/...: key issuance and user moderation, mounted only when
    HTTP_ADMIN_TOKEN is set and guarded by a bearer token

Every response uses the APIResponse envelope. Requests carry an
X-Request-Id that is also the logging correlation id.
*/
package api
