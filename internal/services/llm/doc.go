// Package llm provides a client for OpenAI-compatible chat completion
// endpoints (Groq by default) used for invoice analysis.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive free text.
// Client.CompleteJSON: send system/user prompts, receive a JSON response.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON / ExtractJSON: tolerate code fences and prose around JSON.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Retry-After is honoured. Context cancellation aborts
// retries immediately.
//
// Failures are tagged with services markers: a missing key is a
// configuration error, everything the endpoint rejects is an external tool
// error.
package llm
