// Package preflight runs readiness checks before intake starts: the watched
// folder, the state directory and its free space, and the LLM endpoint.
package preflight
