package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// ClinicID records the clinic identifier under the key "clinic_id".
// If id is nil, it returns an empty Attr.
func ClinicID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("clinic_id", id)
}

// OperatorID records the operator identity under the key "operator_id".
func OperatorID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("operator_id", id)
}

// Component records the subsystem emitting the log record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
