// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

/*
Package supervisor runs the relay's services under a suture v4 tree.

	RootSupervisor ("mediarelay")
	├── DataSupervisor ("data-layer")
	│   ├── SweepService "inactivity-sweep"
	│   ├── SweepService "presence-sweep"
	│   └── SweepService "duplicate-sweep"
	├── MessagingSupervisor ("messaging-layer")
	│   ├── events.Bus ("event-bus")
	│   ├── ingest.Queue ("ingest-queue")
	│   ├── executor.Executor ("sync-executor")
	│   └── bot.Bot ("bot")
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services restart with suture's backoff. Supervisor events are logged
through sutureslog into the zerolog-backed slog handler.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
	    return err
	}
	tree.AddMessagingService(bus)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}
*/
package supervisor
