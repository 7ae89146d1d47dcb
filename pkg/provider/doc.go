// Package provider resolves (provider, model) pairs into connection
// profiles and exposes a uniform chat-completion client over the
// heterogeneous provider SDKs. Provider quirks (fixed temperature,
// alternate token-limit parameter, local endpoints) are declared on the
// profile rather than branched on by callers.
package provider
