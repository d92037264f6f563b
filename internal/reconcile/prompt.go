package reconcile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/DocOps/issuer/internal/sites"
)

// Answer is an operator's response to one missing-resource prompt.
type Answer int

const (
	// AnswerAccept creates the resource with default attributes.
	AnswerAccept Answer = iota
	// AnswerDecline skips the resource; dependent issues proceed without it.
	AnswerDecline
	// AnswerCustom creates the resource with operator-supplied attributes
	// (tags only: color and description).
	AnswerCustom
	// AnswerAbort terminates the entire run before any issue is submitted.
	AnswerAbort
)

// Prompter decides what to do about each missing resource. Interactive
// deployments read the terminal; automated deployments and tests substitute
// a scripted implementation.
type Prompter interface {
	Resolve(kind, name string) (Answer, sites.ResourceOpts, error)
}

// TerminalPrompter asks on the terminal, blocking for a response.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	// reader persists across prompts so type-ahead buffered past the first
	// newline is not discarded between questions.
	reader *bufio.Reader
}

// Resolve prompts for one missing resource and parses the reply. Custom
// attributes (color, description) apply to tags only; for other kinds the
// choice is create, skip, or abort.
func (p *TerminalPrompter) Resolve(kind, name string) (Answer, sites.ResourceOpts, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}

	allowCustom := kind == "tag"
	choices := "[Y]es/[n]o/[a]bort"
	if allowCustom {
		choices = "[Y]es/[n]o/[c]ustom/[a]bort"
	}
	fmt.Fprintf(p.Out, "%s %q does not exist. Create it? %s: ", kind, name, choices)

	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return AnswerAbort, sites.ResourceOpts{}, fmt.Errorf("reading response: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return AnswerAccept, sites.ResourceOpts{}, nil
	case "n", "no":
		return AnswerDecline, sites.ResourceOpts{}, nil
	case "a", "abort":
		return AnswerAbort, sites.ResourceOpts{}, nil
	case "c", "custom":
		if !allowCustom {
			return AnswerDecline, sites.ResourceOpts{}, nil
		}
		opts := sites.ResourceOpts{}
		fmt.Fprint(p.Out, "Color (blank for default): ")
		if v, err := p.reader.ReadString('\n'); err == nil {
			opts.Color = strings.TrimSpace(v)
		}
		fmt.Fprint(p.Out, "Description (blank for none): ")
		if v, err := p.reader.ReadString('\n'); err == nil {
			opts.Description = strings.TrimSpace(v)
		}
		return AnswerCustom, opts, nil
	default:
		return AnswerDecline, sites.ResourceOpts{}, nil
	}
}

// AutoPrompter accepts every missing resource without asking. Used when the
// run is started with automation enabled.
type AutoPrompter struct{}

// Resolve always accepts.
func (AutoPrompter) Resolve(kind, name string) (Answer, sites.ResourceOpts, error) {
	return AnswerAccept, sites.ResourceOpts{}, nil
}

// ScriptedPrompter replays a fixed answer sequence. Test support.
type ScriptedPrompter struct {
	Answers []Answer
	Opts    []sites.ResourceOpts
	next    int
}

// Resolve returns the next scripted answer, declining once exhausted.
func (p *ScriptedPrompter) Resolve(kind, name string) (Answer, sites.ResourceOpts, error) {
	if p.next >= len(p.Answers) {
		return AnswerDecline, sites.ResourceOpts{}, nil
	}
	ans := p.Answers[p.next]
	var opts sites.ResourceOpts
	if p.next < len(p.Opts) {
		opts = p.Opts[p.next]
	}
	p.next++
	return ans, opts, nil
}
