// Package main hosts the rssap CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the foreground pipeline process plus
// the operational surface around it: subscription management, one-shot feed
// polls, ranking cycles, queue inspection, post review, and configuration
// scaffolding. Commands talk to the same SQLite database the serve process
// uses; SQLite's locking arbitrates concurrent access.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
