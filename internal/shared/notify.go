package shared

import "context"

// ChangeNotifier is told when data backing cached read models has changed.
type ChangeNotifier interface {
	Bump(ctx context.Context) error
}

// NopNotifier ignores change notifications.
type NopNotifier struct{}

// Bump implements ChangeNotifier.
func (NopNotifier) Bump(context.Context) error { return nil }
