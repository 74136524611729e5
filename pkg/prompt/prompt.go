package prompt

import (
	"github.com/AlecAivazis/survey/v2"
)

// Prompter is the decision surface for interactive runs. Non-interactive
// runs use NonInteractive, which answers every question with its
// configured default behavior (conflicts decline, confirmations accept
// only unambiguous suggestions).
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(question string, defaultYes bool) (bool, error)
	// Input asks for a free-form value with a suggested default.
	Input(question, defaultValue string) (string, error)
	// Select asks to pick one of options; defaultValue is pre-selected.
	Select(question string, options []string, defaultValue string) (string, error)
	// Interactive reports whether a human is answering.
	Interactive() bool
}

// Survey implements Prompter on the terminal.
type Survey struct{}

func (Survey) Confirm(question string, defaultYes bool) (bool, error) {
	var answer bool
	err := survey.AskOne(&survey.Confirm{Message: question, Default: defaultYes}, &answer)
	return answer, err
}

func (Survey) Input(question, defaultValue string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Input{Message: question, Default: defaultValue}, &answer)
	return answer, err
}

func (Survey) Select(question string, options []string, defaultValue string) (string, error) {
	var answer string
	sel := &survey.Select{Message: question, Options: options}
	if defaultValue != "" {
		sel.Default = defaultValue
	}
	err := survey.AskOne(sel, &answer)
	return answer, err
}

func (Survey) Interactive() bool { return true }

// NonInteractive answers without a human: confirmations return the
// configured AssumeYes, inputs and selects return their defaults.
type NonInteractive struct {
	// AssumeYes makes confirmations succeed (the --yes flag).
	AssumeYes bool
}

func (n NonInteractive) Confirm(question string, defaultYes bool) (bool, error) {
	return n.AssumeYes, nil
}

func (n NonInteractive) Input(question, defaultValue string) (string, error) {
	return defaultValue, nil
}

func (n NonInteractive) Select(question string, options []string, defaultValue string) (string, error) {
	return defaultValue, nil
}

func (n NonInteractive) Interactive() bool { return false }

// Fake is a scripted prompter for tests.
type Fake struct {
	ConfirmAnswers []bool
	InputAnswers   []string
	SelectAnswers  []string
	Questions      []string

	confirmIdx, inputIdx, selectIdx int
}

func (f *Fake) Confirm(question string, defaultYes bool) (bool, error) {
	f.Questions = append(f.Questions, question)
	if f.confirmIdx >= len(f.ConfirmAnswers) {
		return defaultYes, nil
	}
	a := f.ConfirmAnswers[f.confirmIdx]
	f.confirmIdx++
	return a, nil
}

func (f *Fake) Input(question, defaultValue string) (string, error) {
	f.Questions = append(f.Questions, question)
	if f.inputIdx >= len(f.InputAnswers) {
		return defaultValue, nil
	}
	a := f.InputAnswers[f.inputIdx]
	f.inputIdx++
	if a == "" {
		return defaultValue, nil
	}
	return a, nil
}

func (f *Fake) Select(question string, options []string, defaultValue string) (string, error) {
	f.Questions = append(f.Questions, question)
	if f.selectIdx >= len(f.SelectAnswers) {
		return defaultValue, nil
	}
	a := f.SelectAnswers[f.selectIdx]
	f.selectIdx++
	return a, nil
}

func (f *Fake) Interactive() bool { return true }
