// Package llm defines the drafting collaborator used to turn a payment
// transcript into strict intent JSON. Provider adapters live in
// subpackages; callers treat every response as untrusted input.
package llm
