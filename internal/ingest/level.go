package ingest

import "strings"

// severity_number ranges follow the OpenTelemetry log data model: 13-16
// map to warning, 17-24 to error.
const (
	sevWarnLow  = 13
	sevWarnHigh = 16
	sevErrLow   = 17
	sevErrHigh  = 24
)

// NormalizeLevel resolves the event level from the payload by priority:
// explicit level, then severity/severity_text, then the same fields nested
// under extra, then numeric severity_number, then "error".
func NormalizeLevel(p *EventPayload) string {
	if p.Level != "" {
		return mapLevelString(p.Level)
	}
	if p.Severity != "" {
		return mapLevelString(p.Severity)
	}
	if p.SeverityText != "" {
		return mapLevelString(p.SeverityText)
	}
	if s := extraString(p.Extra, "level"); s != "" {
		return mapLevelString(s)
	}
	if s := extraString(p.Extra, "severity"); s != "" {
		return mapLevelString(s)
	}
	if p.SeverityNumber != nil {
		return mapSeverityNumber(*p.SeverityNumber)
	}
	return "error"
}

func mapLevelString(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "warn", "warning":
		return "warning"
	case "err", "error", "fatal":
		return "error"
	case "info", "log", "notice", "debug", "trace":
		return "info"
	}
	return s
}

func mapSeverityNumber(n int) string {
	switch {
	case n >= sevWarnLow && n <= sevWarnHigh:
		return "warning"
	case n >= sevErrLow && n <= sevErrHigh:
		return "error"
	}
	return "info"
}

func extraString(extra map[string]any, key string) string {
	if extra == nil {
		return ""
	}
	if v, ok := extra[key].(string); ok {
		return v
	}
	return ""
}
