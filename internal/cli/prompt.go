package cli

import (
	"context"
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dpshade/pocket-docs/internal/validation"
)

// ErrAborted is returned when the user interrupts a prompt
var ErrAborted = errors.New("aborted by user")

// Question is a single text prompt for one marker
type Question struct {
	Message string
	Help    string
	Default string
}

// Prompter asks the user for marker values. Tests swap in a scripted one.
type Prompter interface {
	Input(ctx context.Context, q Question) (string, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(ctx context.Context, q Question) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	prompt := &survey.Input{
		Message: q.Message,
		Help:    q.Help,
		Default: q.Default,
	}
	if err := survey.AskOne(prompt, &out, survey.WithValidator(survey.MaxLength(validation.MaxValueLength))); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}
