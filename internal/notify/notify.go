// Package notify tells the person at the machine what the updater is doing.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Message is a titled notice.
type Message struct {
	Title string
	Body  string
}

// Notifier presents messages to the user. Implementations may block until the
// user acknowledges the message.
type Notifier interface {
	Notify(msg Message)
}

// UpdateWaiting is shown once per waiting episode while the target process runs.
func UpdateWaiting(process string) Message {
	return Message{
		Title: "Update available",
		Body: fmt.Sprintf("A new update is ready\nPlease close %s and wait for the update to be finished\nPress OK to continue",
			process),
	}
}

// UpdateCompleted is shown once per cycle that applied at least one archive.
func UpdateCompleted() Message {
	return Message{
		Title: "Update completed",
		Body:  "Software has been successfully updated\nYou can start the software now",
	}
}

// WriterNotifier prints messages as single lines on a writer.
type WriterNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterNotifier creates a notifier printing to out.
func NewWriterNotifier(out io.Writer) *WriterNotifier {
	return &WriterNotifier{out: out}
}

// Notify implements Notifier.
func (n *WriterNotifier) Notify(msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "[%s] %s\n", msg.Title, strings.ReplaceAll(msg.Body, "\n", " "))
}

// Func adapts a function to Notifier.
type Func func(Message)

// Notify implements Notifier.
func (f Func) Notify(msg Message) { f(msg) }
