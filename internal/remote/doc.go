// Package remote provides the remote entity sources a sync controller
// reads from.
//
// HTTPSource talks to a paged JSON API. DirSource reads a directory
// export, one subdirectory per entity type. Watcher turns changes in such
// an export into per-type change notifications for the daemon.
//
// Every source reports failures wrapped in engine.ErrNetwork or
// engine.ErrAuth so the controller can classify them.
package remote
