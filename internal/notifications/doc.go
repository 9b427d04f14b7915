// Package notifications delivers intake events via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and degrades to a no-op when no topic is set. The found, comparisons and
// errors switches in [notifications] silence individual event families.
package notifications
