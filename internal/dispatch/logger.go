package dispatch

type Logger interface {
	Printf(format string, args ...any)
}

func logf(logger Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
