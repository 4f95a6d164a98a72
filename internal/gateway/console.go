package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/agent"
	"github.com/operator-ai/deskpilot/internal/plan"
)

// ConsoleApprover previews plans on the terminal and reads the operator's
// decision from stdin. It also serves as the stepwise pauser.
type ConsoleApprover struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func NewConsoleApprover(in io.Reader, out io.Writer) *ConsoleApprover {
	return &ConsoleApprover{In: in, Out: out, reader: bufio.NewReader(in)}
}

// Review prints the classified plan and prompts for run / step / cancel.
// Editing on the console means removing steps by number.
func (c *ConsoleApprover) Review(ctx context.Context, p *plan.Plan) (agent.Review, error) {
	fmt.Fprintf(c.Out, "\nPlan %s (%d steps):\n", p.ID, len(p.Steps))
	for _, st := range p.Steps {
		fmt.Fprintf(c.Out, "  [%d] (%s) %s\n", st.Index, st.Risk, st.SourcePhrase)
		for _, prim := range st.Primitives {
			fmt.Fprintf(c.Out, "        -> %s\n", prim.String())
		}
	}

	for {
		fmt.Fprint(c.Out, "\n[r]un all, [s]tep through, [e]dit (drop steps), [c]ancel: ")
		line, err := c.readLine(ctx)
		if err != nil {
			return agent.Review{}, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "r", "run":
			return agent.Review{Decision: agent.DecisionRunAll}, nil
		case "s", "step":
			return agent.Review{Decision: agent.DecisionRunStepwise}, nil
		case "c", "cancel":
			return agent.Review{Decision: agent.DecisionCancel}, nil
		case "e", "edit":
			edited, err := c.edit(ctx, p)
			if err != nil {
				return agent.Review{}, err
			}
			return agent.Review{Decision: agent.DecisionEdit, Edited: edited}, nil
		}
		fmt.Fprintln(c.Out, "unrecognized choice")
	}
}

// ReadRequest prompts for the next natural-language request, skipping
// blank lines. Returns io.EOF when the input closes.
func (c *ConsoleApprover) ReadRequest(ctx context.Context) (string, error) {
	for {
		fmt.Fprint(c.Out, "\ndeskpilot> ")
		line, err := c.readLine(ctx)
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}
}

// AwaitContinue blocks the stepwise run until the operator presses enter.
func (c *ConsoleApprover) AwaitContinue(ctx context.Context, prim action.Primitive) error {
	fmt.Fprintf(c.Out, "done: %s. enter to continue, q to abort: ", prim.String())
	line, err := c.readLine(ctx)
	if err != nil {
		return err
	}
	if strings.ToLower(strings.TrimSpace(line)) == "q" {
		return context.Canceled
	}
	return nil
}

// edit builds a new pending plan with the listed step numbers removed.
func (c *ConsoleApprover) edit(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
	fmt.Fprint(c.Out, "step numbers to drop (comma-separated, empty keeps all): ")
	line, err := c.readLine(ctx)
	if err != nil {
		return nil, err
	}

	drop := map[int]bool{}
	for _, tok := range strings.Split(line, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(tok, "%d", &n); err == nil {
			drop[n] = true
		}
	}
	if len(drop) == 0 {
		return nil, nil
	}

	var steps []plan.Step
	for _, st := range p.Steps {
		if drop[st.Index] {
			continue
		}
		steps = append(steps, st)
	}
	for i := range steps {
		steps[i].Index = i
	}
	return plan.New(p.Request, steps), nil
}

func (c *ConsoleApprover) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := c.reader.ReadString('\n')
		ch <- result{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err == io.EOF && strings.TrimSpace(res.line) == "" {
			return "", io.EOF
		}
		if res.err != nil && res.err != io.EOF {
			return "", res.err
		}
		return res.line, nil
	}
}
