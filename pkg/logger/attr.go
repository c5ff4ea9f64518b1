package logger

import "log/slog"

// Error records err under the key "error".
// A nil error yields an empty Attr, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component tags records with the emitting subsystem.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Reference is the caller-assigned payment reference (subscription request id).
func Reference(ref string) slog.Attr {
	if ref == "" {
		return slog.Attr{}
	}
	return slog.String("reference", ref)
}

// InvoiceID is the gateway-assigned invoice identifier.
func InvoiceID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("invoice_id", id)
}

// UserID records a user account identifier.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// Outcome records how a callback or task was resolved.
func Outcome(o string) slog.Attr {
	return slog.String("outcome", o)
}

// Status records a lifecycle or gateway status value.
func Status(s string) slog.Attr {
	return slog.String("status", s)
}

// Actor records who triggered a mutation.
func Actor(a string) slog.Attr {
	return slog.String("actor", a)
}

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func RetryCount(n int) slog.Attr {
	return slog.Int("retry_count", n)
}

func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Group nests attrs under name.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
