// Package invoice asks the LLM to pull structured fields out of extracted
// invoice text and to compare two invoices.
//
// Model output is parsed leniently: code fences, prose around the JSON, a
// trailing TERMINATE sentinel, unquoted keys, and trailing commas are all
// tolerated. Fields the model could not find are nil, never empty strings.
package invoice
