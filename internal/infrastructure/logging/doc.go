// Package logging provides structured logging for dcsense-core.
//
// It wraps log/slog so every component logs with the same handler,
// level filtering and default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log credentials, ticket values or the credential key.
package logging
