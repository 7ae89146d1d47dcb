package permission

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Policy constrains which tools and filesystem paths a run may touch.
// A policy is immutable once attached to a request.
type Policy struct {
	AllowedTools []string `json:"allowed_tools,omitempty"`
	BlockedTools []string `json:"blocked_tools,omitempty"`
	AllowedPaths []string `json:"allowed_paths,omitempty"`
	BlockedPaths []string `json:"blocked_paths,omitempty"`
	ReadOnly     bool     `json:"read_only,omitempty"`
}

// Rule identifies which precedence rule produced a decision.
type Rule string

const (
	RuleToolBlocked    Rule = "tool_blocked"
	RuleToolNotAllowed Rule = "tool_not_in_allow_list"
	RuleReadOnly       Rule = "read_only_write"
	RulePathBlocked    Rule = "path_blocked"
	RulePathNotAllowed Rule = "path_not_in_allow_list"
	RuleAllowed        Rule = "allowed"
)

// Decision is the outcome of a single policy check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Rule    Rule   `json:"rule"`
}

// Error reports a request-level policy violation: the caller asked for
// something the policy can never grant, so the run is rejected before
// it starts. Per-call denials during a run are reported back to the
// model instead.
type Error struct {
	Reason string
	Rule   Rule
}

func (e *Error) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

// pathArgKeys are the argument names that carry filesystem paths in the
// core tool contract.
var pathArgKeys = []string{"file_path", "directory_path", "path"}

// Checker evaluates policies. WriteClass holds the names of tools that
// create or mutate persistent state. workingDir anchors relative path
// arguments and must match the anchor the tools themselves resolve
// against, or path rules would be enforced on the wrong file.
type Checker struct {
	writeClass map[string]struct{}
	workingDir string
}

// DefaultWriteClass lists the write-class tools of the core toolkit.
func DefaultWriteClass() []string {
	return []string{"write_file", "edit_file"}
}

// NewChecker creates a checker. An empty writeClass falls back to the
// core toolkit's write tools; an empty workingDir falls back to the
// process working directory.
func NewChecker(writeClass []string, workingDir string) *Checker {
	if len(writeClass) == 0 {
		writeClass = DefaultWriteClass()
	}
	if workingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workingDir = wd
		}
	}
	set := make(map[string]struct{}, len(writeClass))
	for _, name := range writeClass {
		set[name] = struct{}{}
	}
	return &Checker{writeClass: set, workingDir: workingDir}
}

// Check decides whether a tool call is permitted. Rules are evaluated in
// fixed order and the first match decides:
//
//  1. tool in blocked list        -> deny
//  2. allow list set, tool absent -> deny
//  3. read-only and write-class   -> deny
//  4. path arguments vs blocked/allowed path lists
//  5. allow
func (c *Checker) Check(toolName string, args map[string]interface{}, policy Policy) Decision {
	for _, blocked := range policy.BlockedTools {
		if blocked == toolName {
			return c.deny(toolName, RuleToolBlocked,
				fmt.Sprintf("tool %q is blocked", toolName))
		}
	}

	if len(policy.AllowedTools) > 0 && !containsString(policy.AllowedTools, toolName) {
		return c.deny(toolName, RuleToolNotAllowed,
			fmt.Sprintf("tool %q is not in the allowed tools list", toolName))
	}

	if policy.ReadOnly {
		if _, isWrite := c.writeClass[toolName]; isWrite {
			return c.deny(toolName, RuleReadOnly,
				fmt.Sprintf("write operations are disabled in read-only mode (tool %q)", toolName))
		}
	}

	for _, key := range pathArgKeys {
		raw, ok := args[key]
		if !ok {
			continue
		}
		pathValue, ok := raw.(string)
		if !ok || pathValue == "" {
			continue
		}
		if d, denied := c.checkPath(toolName, pathValue, policy); denied {
			return d
		}
	}

	return Decision{Allowed: true, Reason: "allowed", Rule: RuleAllowed}
}

// ValidateRequest rejects a run whose explicit tool selection can
// never pass the policy's tool rules. Nothing path-level is checked
// here; paths are only known per call.
func (c *Checker) ValidateRequest(tools []string, policy Policy) error {
	for _, name := range tools {
		if d := c.Check(name, nil, policy); !d.Allowed {
			return &Error{Reason: d.Reason, Rule: d.Rule}
		}
	}
	return nil
}

// checkPath applies the blocked-paths list first, then the allowed-paths
// list. Patterns containing '*' are matched with filepath.Match against
// the cleaned absolute path; everything else is a prefix match.
func (c *Checker) checkPath(toolName, pathValue string, policy Policy) (Decision, bool) {
	abs := c.normalizePath(pathValue)

	for _, pattern := range policy.BlockedPaths {
		if c.pathMatches(abs, pattern) {
			return c.deny(toolName, RulePathBlocked,
				fmt.Sprintf("path %q is blocked by pattern %q", pathValue, pattern)), true
		}
	}

	if len(policy.AllowedPaths) > 0 {
		for _, pattern := range policy.AllowedPaths {
			if c.pathMatches(abs, pattern) {
				return Decision{}, false
			}
		}
		return c.deny(toolName, RulePathNotAllowed,
			fmt.Sprintf("path %q is not under any allowed path", pathValue)), true
	}

	return Decision{}, false
}

func (c *Checker) deny(toolName string, rule Rule, reason string) Decision {
	log.Warn().
		Str("tool", toolName).
		Str("rule", string(rule)).
		Str("reason", reason).
		Msg("Tool call denied by policy")

	return Decision{Allowed: false, Reason: reason, Rule: rule}
}

// normalizePath resolves a path argument the same way the tools do:
// relative paths are anchored at the checker's working directory.
func (c *Checker) normalizePath(p string) string {
	if !filepath.IsAbs(p) && c.workingDir != "" {
		p = filepath.Join(c.workingDir, p)
	}
	return filepath.Clean(p)
}

func (c *Checker) pathMatches(abs, pattern string) bool {
	if strings.Contains(pattern, "*") {
		if ok, err := filepath.Match(pattern, abs); err == nil && ok {
			return true
		}
		// Also try matching just the base name so patterns like
		// "*.secret" block the file anywhere.
		if ok, err := filepath.Match(pattern, filepath.Base(abs)); err == nil && ok {
			return true
		}
		return false
	}

	prefix := c.normalizePath(pattern)
	if abs == prefix {
		return true
	}
	return strings.HasPrefix(abs, prefix+string(filepath.Separator))
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
