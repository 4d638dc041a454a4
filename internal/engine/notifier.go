package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
	"github.com/hammamikhairi/kinectdrone/internal/storage"
)

// Compile-time interface check.
var _ domain.Notifier = (*LogNotifier)(nil)

// PrintFunc is a function used to print formatted output.
// Matches the signature of both fmt.Printf and display.UI.Printf.
type PrintFunc func(format string, a ...interface{})

// LogNotifier writes operator log lines as "> message", records them in
// the history store and forwards them to an optional print function.
type LogNotifier struct {
	log     *logger.Logger
	store   *storage.LogStore
	printFn PrintFunc
}

// NewLogNotifier creates a notifier. store and printFn may be nil.
func NewLogNotifier(log *logger.Logger, store *storage.LogStore, printFn PrintFunc) *LogNotifier {
	return &LogNotifier{log: log, store: store, printFn: printFn}
}

// Notify records a normal log line.
func (n *LogNotifier) Notify(ctx context.Context, message string) error {
	return n.write(message, false)
}

// NotifyUrgent records an error line.
func (n *LogNotifier) NotifyUrgent(ctx context.Context, message string) error {
	return n.write(message, true)
}

func (n *LogNotifier) write(message string, urgent bool) error {
	n.log.Debug("notify(urgent=%v): %s", urgent, message)
	if n.store != nil {
		n.store.Append(storage.Entry{At: time.Now(), Text: message, Urgent: urgent})
	}
	if n.printFn != nil {
		n.printFn("%s", FormatLine(message))
	}
	return nil
}

// FormatLine renders a log line the way the operator sees it.
func FormatLine(message string) string {
	return fmt.Sprintf("> %s", message)
}
