// Package logging builds the service's log/slog logger.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
// Components derive their loggers from the default:
//
//	logger := slog.Default().With("component", "budget.usage")
//
// # Request Context
//
// The HTTP middleware stores a request ID with WithRequestID. Every record
// logged through a *Context method with that context carries a request_id
// attribute.
//
// # Redaction
//
// With RedactSecrets enabled, attributes whose key names a credential
// (secret, password, token, authorization) are masked, and string values
// are scrubbed of Slack webhook URLs, bearer tokens and password
// assignments.
package logging
