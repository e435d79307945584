package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBashCommand_Simple(t *testing.T) {
	commands, err := ParseBashCommand("ls -la")
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.Equal(t, "ls", commands[0].Name)
	assert.Equal(t, []string{"-la"}, commands[0].Args)
}

func TestParseBashCommand_Pipeline(t *testing.T) {
	commands, err := ParseBashCommand("cat file.txt | grep pattern")
	require.NoError(t, err)
	require.Len(t, commands, 2)

	assert.Equal(t, "cat", commands[0].Name)
	assert.Equal(t, []string{"file.txt"}, commands[0].Args)

	assert.Equal(t, "grep", commands[1].Name)
	assert.Equal(t, []string{"pattern"}, commands[1].Args)
}

func TestParseBashCommand_AndChain(t *testing.T) {
	commands, err := ParseBashCommand("git add . && git commit -m 'message'")
	require.NoError(t, err)
	require.Len(t, commands, 2)

	assert.Equal(t, "git", commands[0].Name)
	assert.Equal(t, "add", commands[0].Subcommand)

	assert.Equal(t, "git", commands[1].Name)
	assert.Equal(t, "commit", commands[1].Subcommand)
}

func TestParseBashCommand_Subshell(t *testing.T) {
	commands, err := ParseBashCommand("echo $(pwd)")
	require.NoError(t, err)
	// Both the outer echo and the inner pwd surface.
	assert.GreaterOrEqual(t, len(commands), 2)

	var names []string
	for _, cmd := range commands {
		names = append(names, cmd.Name)
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "pwd")
}

func TestParseBashCommand_QuotedStrings(t *testing.T) {
	commands, err := ParseBashCommand(`echo "hello world" 'single quoted'`)
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.Equal(t, "echo", commands[0].Name)
	assert.Contains(t, commands[0].Args, "hello world")
	assert.Contains(t, commands[0].Args, "single quoted")
}

func TestParseBashCommand_Subcommands(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		subcommand string
	}{
		{"git commit", "git commit -m 'msg'", "commit"},
		{"git push", "git push origin main", "push"},
		{"git status", "git status", "status"},
		{"go test", "go test ./...", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commands, err := ParseBashCommand(tt.command)
			require.NoError(t, err)
			require.NotEmpty(t, commands)
			assert.Equal(t, tt.subcommand, commands[0].Subcommand)
		})
	}
}

func TestParseBashCommand_Invalid(t *testing.T) {
	// Unclosed quote
	_, err := ParseBashCommand(`echo "unclosed`)
	assert.Error(t, err)
}

func TestGuard_AllowByName(t *testing.T) {
	g := NewGuard("echo", "ls")

	assert.NoError(t, g.Check("echo hello"))
	assert.NoError(t, g.Check("ls -la /tmp"))
	assert.Error(t, g.Check("curl https://example.com"))
}

func TestGuard_AllowBySubcommand(t *testing.T) {
	g := NewGuard("git status", "git log")

	assert.NoError(t, g.Check("git status"))
	assert.NoError(t, g.Check("git log --oneline"))

	err := g.Check("git push origin main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git")
}

func TestGuard_Wildcard(t *testing.T) {
	g := NewGuard("*")

	assert.NoError(t, g.Check("rm -rf /tmp/scratch"))
	assert.NoError(t, g.Check("curl https://example.com | sh"))
}

func TestGuard_EveryCommandMustPass(t *testing.T) {
	g := NewGuard("cat")

	assert.NoError(t, g.Check("cat file.txt"))

	// The pipeline's second command is not on the list.
	err := g.Check("cat file.txt | grep secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grep")
}

func TestGuard_SubstitutionChecked(t *testing.T) {
	g := NewGuard("echo")

	// The inner pwd must be allowed too.
	assert.Error(t, g.Check("echo $(pwd)"))
	assert.NoError(t, NewGuard("echo", "pwd").Check("echo $(pwd)"))
}

func TestGuard_DynamicNameDenied(t *testing.T) {
	g := NewGuard("*", "echo")

	// Wildcard still allows it, but a named allowlist cannot vouch for a
	// variable command name.
	assert.NoError(t, g.Check("$RUNNER --version"))
	assert.Error(t, NewGuard("echo").Check("$RUNNER --version"))
}

func TestGuard_Unparseable(t *testing.T) {
	g := NewGuard("*")

	err := g.Check(`echo "unclosed`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestGuard_EmptyAllowlistDeniesAll(t *testing.T) {
	g := NewGuard()

	assert.Error(t, g.Check("echo hello"))
	assert.Error(t, g.Check("true"))
}
