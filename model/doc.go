// Package model defines the normalized LLM invocation surface shared by the
// engines: a role-tagged message request with a provider/model selector and a
// single response carrying generated text plus token-usage counters. Provider
// adapters live in subpackages (openai, anthropic); Registry dispatches a
// request to the adapter matching its provider selector.
package model
