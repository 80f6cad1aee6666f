package notify

import (
	"io"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mbOK          = 0x00000000
	mbIconWarning = 0x00000030
	mbSystemModal = 0x00001000

	wtsCurrentServerHandle = 0
	noConsoleSession       = 0xFFFFFFFF
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procMessageBoxW = user32.NewProc("MessageBoxW")

	kernel32                         = windows.NewLazySystemDLL("kernel32.dll")
	procWTSGetActiveConsoleSessionId = kernel32.NewProc("WTSGetActiveConsoleSessionId")

	wtsapi32            = windows.NewLazySystemDLL("wtsapi32.dll")
	procWTSSendMessageW = wtsapi32.NewProc("WTSSendMessageW")
)

// ModalNotifier shows a system-modal message box and blocks until it is dismissed.
type ModalNotifier struct{}

// Notify implements Notifier.
func (ModalNotifier) Notify(msg Message) {
	title, err := windows.UTF16PtrFromString(msg.Title)
	if err != nil {
		return
	}
	body, err := windows.UTF16PtrFromString(msg.Body)
	if err != nil {
		return
	}
	procMessageBoxW.Call( //nolint:errcheck
		0,
		uintptr(unsafe.Pointer(body)),
		uintptr(unsafe.Pointer(title)),
		mbOK|mbSystemModal|mbIconWarning,
	)
}

// SessionNotifier shows the message box on the interactive console session
// from a service running in session 0. It returns without waiting for the
// box to be dismissed.
type SessionNotifier struct {
	fallback Notifier
}

// Notify implements Notifier. Without an active console session, or when the
// message cannot be delivered, it goes to the fallback instead.
func (n SessionNotifier) Notify(msg Message) {
	session, _, _ := procWTSGetActiveConsoleSessionId.Call()
	if uint32(session) == noConsoleSession || !sendToSession(uint32(session), msg) {
		n.fallback.Notify(msg)
	}
}

func sendToSession(session uint32, msg Message) bool {
	title, err := windows.UTF16FromString(msg.Title)
	if err != nil {
		return false
	}
	body, err := windows.UTF16FromString(msg.Body)
	if err != nil {
		return false
	}

	var response uint32
	// Lengths are in bytes, without the terminator.
	ok, _, _ := procWTSSendMessageW.Call(
		wtsCurrentServerHandle,
		uintptr(session),
		uintptr(unsafe.Pointer(&title[0])),
		uintptr((len(title)-1)*2),
		uintptr(unsafe.Pointer(&body[0])),
		uintptr((len(body)-1)*2),
		mbOK|mbSystemModal|mbIconWarning,
		0,
		uintptr(unsafe.Pointer(&response)),
		0, // bWait
	)
	return ok != 0
}

// Default returns the platform notifier: a modal dialog on Windows.
func Default(_ io.Writer) Notifier {
	return ModalNotifier{}
}

// Background returns the notifier for a process without a desktop of its
// own, such as a service: a dialog on the console session that never blocks
// the caller. Messages that cannot be shown go to fallback.
func Background(fallback Notifier) Notifier {
	return SessionNotifier{fallback: fallback}
}
