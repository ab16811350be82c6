package command

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

// Variables are exposed to command arguments as {{.Name}} placeholders.
type Variables struct {
	Platform  string
	Prefix    string
	BinDir    string
	OutputDir string
	RepoDir   string
	Branch    string
	Commit    string
	Tool      string
	Version   string
}

// Render expands templated arguments and environment entries of a command.
func Render(command model.Command, variables Variables) (Command, error) {
	executable, err := renderString("executable", command.Executable, variables)
	if err != nil {
		return Command{}, err
	}
	args := make([]string, 0, len(command.Args))
	for i, arg := range command.Args {
		rendered, err := renderString("arg", arg, variables)
		if err != nil {
			return Command{}, errors.Wrapf(err, "argument %v", i)
		}
		args = append(args, rendered)
	}
	env := make([]string, 0, len(command.Env))
	for _, kv := range command.Env {
		rendered, err := renderString("env", kv, variables)
		if err != nil {
			return Command{}, err
		}
		env = append(env, rendered)
	}
	return Command{
		WorkDir:    command.WorkDir,
		Executable: executable,
		Args:       args,
		Env:        env,
	}, nil
}

// RenderString expands a single template string such as a commit message.
func RenderString(text string, variables Variables) (string, error) {
	return renderString("text", text, variables)
}

func renderString(name, text string, variables Variables) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse template %q", text)
	}
	var b strings.Builder
	err = tmpl.Execute(&b, variables)
	if err != nil {
		return "", errors.Wrapf(err, "failed to execute template %q", text)
	}
	return b.String(), nil
}
