// Package agent runs the autonomous execution loop: it sends the
// conversation to an LLM provider, executes the tool calls the model
// requests under a permission policy, feeds the results back, and
// repeats until the model answers without tools or a budget runs out.
package agent
