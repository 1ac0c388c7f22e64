// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

/*
Package services adapts relay components that do not already expose
Serve(ctx) error into suture services.

  - HTTPServerService: *http.Server with graceful shutdown
  - SweepService: a periodic maintenance job on a ticker

Components that already implement suture.Service (the event bus, ingest
queue, sync executor and bot) are added to the tree directly.
*/
package services
