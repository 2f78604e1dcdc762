package chatcmder

import (
	"fmt"
	"io"

	"github.com/papercomputeco/careline/pkg/chat"
	"github.com/papercomputeco/careline/pkg/cliui"
)

// replyPrinter writes the assistant reply as it grows. Content only grows at
// the end, so each update prints just the new suffix.
type replyPrinter struct {
	out     io.Writer
	printed int
	started bool
}

var _ chat.Observer = (*replyPrinter)(nil)

func (p *replyPrinter) OnAppend(msg chat.Message) {
	if msg.Role != chat.RoleAssistant {
		return
	}
	fmt.Fprint(p.out, cliui.AssistantPrompt)
	p.started = true
	p.write(msg.Content)
}

func (p *replyPrinter) OnUpdate(msg chat.Message) {
	p.write(msg.Content)
}

func (p *replyPrinter) OnFinish(chat.Message) {}

func (p *replyPrinter) write(content string) {
	if len(content) <= p.printed {
		return
	}
	fmt.Fprint(p.out, content[p.printed:])
	p.printed = len(content)
}

func (p *replyPrinter) reset() {
	p.printed = 0
	p.started = false
}

// end terminates the reply line, if one was started.
func (p *replyPrinter) end() {
	if p.started {
		fmt.Fprintln(p.out)
	}
}
