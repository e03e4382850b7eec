// Package notifications sends push notifications for workflow events through
// ntfy. Without a configured topic every call is a noop.
package notifications
