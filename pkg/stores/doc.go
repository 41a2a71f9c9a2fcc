// Package stores persists the command history of a project in an SQLite
// database (.mio/history.db). The schema is managed with embedded migrations.
package stores
