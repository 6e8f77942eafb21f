package agent

import "github.com/openintentos/openintent/internal/llm"

// Context is the conversation state one run operates on. Build it with the
// With* chain, then hand it to Run; afterwards Messages exposes the full
// transcript including tool traffic.
type Context struct {
	systemPrompt string
	messages     []llm.Message
}

func NewContext() *Context {
	return &Context{}
}

// WithSystemPrompt sets the system prompt for every turn of the run.
func (c *Context) WithSystemPrompt(prompt string) *Context {
	c.systemPrompt = prompt
	return c
}

// WithUserMessage appends a user message.
func (c *Context) WithUserMessage(content string) *Context {
	c.messages = append(c.messages, llm.Message{Role: llm.RoleUser, Content: content})
	return c
}

// WithHistory pre-seeds the conversation, e.g. from a stored session.
func (c *Context) WithHistory(history []llm.Message) *Context {
	c.messages = append(c.messages, history...)
	return c
}

// Messages returns the transcript accumulated so far.
func (c *Context) Messages() []llm.Message {
	return c.messages
}

// SystemPrompt returns the configured system prompt.
func (c *Context) SystemPrompt() string {
	return c.systemPrompt
}

func (c *Context) append(msg llm.Message) {
	c.messages = append(c.messages, msg)
}
