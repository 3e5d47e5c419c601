// Package store holds the registrar backends for the enrollment gate and the
// metrics they share.
//
// Backends:
//   - memstore: in-process maps, used by tests and the default server mode
//   - redisstore: one Redis set per course, capacity enforced by a Lua script
//   - pgstore: PostgreSQL tables, capacity enforced under a row lock
//
// Every backend enforces capacity on its own, so a course cannot be
// overbooked even when several engine processes share one store.
package store
