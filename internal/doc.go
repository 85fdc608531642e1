// Package internal contains the core implementation packages for surfacepool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - types: Element keys, dependency rules, events and stats shared by the others
//   - errors: Structured errors, sentinels and error collection
//   - logging: slog-based structured logger with component scoping
//   - pool: Fixed-capacity render-surface pool with overflow instances
//   - visibility: Base and effective flags with dependency cascades
//   - registry: Weakly held consumers and change broadcasting
//   - di: Service container wiring engine, pool and registry from config
//   - config: Viper-backed configuration with validation
//   - watcher: Debounced file watching and flag-file synchronization
//   - version: Build information
//
// # Inter-Package Communication
//
//   - The registry owns the visibility engine and is the only writer of flags
//   - A flag write yields events that the registry fans out to every consumer
//   - The container checks out a surface per consumer and registers the consumer
//   - The flag-file watcher drives flag writes through the container
//
// For detailed documentation, see the individual package documentation.
package internal
