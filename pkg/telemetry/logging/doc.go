// Package logging builds the structured loggers used across Lucid.
//
// Loggers are plain *slog.Logger values with a JSON, text or console
// handler. Decision trace IDs and request IDs stored in a context are
// attached to every record logged with that context:
//
//	logger, err := logging.Init(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithTraceID(ctx, artifact.TraceID)
//	logger.InfoContext(ctx, "Decision evaluated", "allowed", verdict.Allowed)
//
// Packages derive component loggers from the default:
//
//	logger := slog.Default().With("component", "audit.recorder")
package logging
