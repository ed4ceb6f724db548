// Package logging provides the process-wide structured logger of smartlaunch.
//
// It wraps log/slog with subsystem-tagged helpers so call sites stay short:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Config", "Loaded configuration from %s", path)
//	logging.Debug("SmartAuth", "Created authorization session %s", id)
//	logging.Warn("Login", "Failed to open browser: %v", err)
//	logging.Error("Storage", err, "Failed to write %s", key)
//
// Every entry carries a "subsystem" attribute; errors passed to Error are
// added as an "error" attribute. InitForCLI also installs the handler as the
// slog default, so packages logging through slog directly share the output.
//
// # Audit Logging
//
// Security relevant actions such as login and logout are recorded with Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:    "login",
//	    Outcome:   "success",
//	    SessionID: logging.TruncateSessionID(sessionID),
//	    Target:    issuer,
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix and are written
// even when the configured level would filter INFO. Tokens, code verifiers and
// state values are never logged.
package logging
