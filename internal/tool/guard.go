package tool

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashCommand represents a parsed command with its arguments.
type BashCommand struct {
	Name       string   // Command name (e.g., "rm", "git")
	Args       []string // Command arguments
	Subcommand string   // First non-flag argument (e.g., "commit" in "git commit")
}

// ParseBashCommand parses a bash command string into structured commands.
// Pipelines, chains, and substitutions all contribute their simple commands.
func ParseBashCommand(command string) ([]BashCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []BashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CallExpr:
			cmd := extractCommand(n)
			if cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

// extractCommand extracts command name and arguments from a CallExpr.
func extractCommand(call *syntax.CallExpr) *BashCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &BashCommand{}

	cmd.Name = wordToString(call.Args[0])
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)

		// Find first non-flag argument as subcommand
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}

	return cmd
}

// wordToString converts a syntax.Word to a string.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			// Variable expansion - return placeholder
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Command substitution - ignore the content, mark as dynamic
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// Guard is the allowlist gate in front of the bash tool. A command string
// passes only when every simple command it parses into matches a pattern.
// Patterns are "name" (any invocation), "name subcommand" (only that
// subcommand), or "*" (anything). Unparseable commands are denied, and a
// command name built from an expansion matches nothing but the wildcard.
type Guard struct {
	allow []string
}

// NewGuard creates a guard from allowlist patterns.
func NewGuard(patterns ...string) *Guard {
	return &Guard{allow: patterns}
}

// Check reports whether the command may run. Nil means allowed.
func (g *Guard) Check(command string) error {
	commands, err := ParseBashCommand(command)
	if err != nil {
		return fmt.Errorf("command rejected: %w", err)
	}
	if len(commands) == 0 {
		return fmt.Errorf("command rejected: nothing to run in %q", command)
	}
	for _, cmd := range commands {
		if !g.allows(cmd) {
			return fmt.Errorf("command not allowed: %s", cmd.Name)
		}
	}
	return nil
}

func (g *Guard) allows(cmd BashCommand) bool {
	// A dynamic name means arbitrary execution; only the wildcard can vouch
	// for it.
	dynamic := strings.Contains(cmd.Name, "$")

	for _, pattern := range g.allow {
		if pattern == "*" {
			return true
		}
		if dynamic {
			continue
		}
		name, sub, hasSub := strings.Cut(pattern, " ")
		if name != cmd.Name {
			continue
		}
		if !hasSub || sub == cmd.Subcommand {
			return true
		}
	}
	return false
}
