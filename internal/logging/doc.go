// Package logging configures the structured slog logger used by the search
// service and its CLI.
//
// Records are JSON by default. When stderr is a terminal and no log file is
// configured, a text handler is used instead so interactive runs stay
// readable. File output goes through a size-rotated writer; `mosaic --debug`
// writes to ~/.mosaic/logs/server.log at debug level.
package logging
