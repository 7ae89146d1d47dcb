// Package permission implements the policy check applied to every tool
// call an agent run attempts. The checker is a pure decision function:
// it holds no state between calls and the same inputs always produce
// the same decision.
package permission
