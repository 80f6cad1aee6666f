//go:build !windows

package notify

import "io"

// Default returns the platform notifier. Without a desktop dialog API the
// messages are printed to out.
func Default(out io.Writer) Notifier {
	return NewWriterNotifier(out)
}

// Background returns the notifier for a process without a desktop of its
// own, such as a service. There is no session to show a dialog on, so every
// message goes to fallback.
func Background(fallback Notifier) Notifier {
	return fallback
}
