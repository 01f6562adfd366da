package orchestrator

import (
	"fmt"

	"github.com/ShayCichocki/conclave/internal/template"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// Context is the shared output store of a run: output key to step result.
// It is owned by the orchestrator's driver loop and is not safe for
// concurrent use; step goroutines only ever see rendered prompts.
type Context struct {
	values map[string]string
	owners map[string]string
	order  []string
}

// NewContext creates an empty Context.
func NewContext() *Context {
	return &Context{
		values: make(map[string]string),
		owners: make(map[string]string),
	}
}

// Commit stores a step's output under every key the step publishes.
// A key already owned by a different step is never overwritten.
func (c *Context) Commit(step models.StrategyStep, output string) error {
	keys := step.OutputKeys()
	for _, key := range keys {
		if owner, ok := c.owners[key]; ok && owner != step.ID {
			return fmt.Errorf("%w: %s is owned by %s", ErrContextKeyOwned, key, owner)
		}
	}
	for _, key := range keys {
		if _, exists := c.values[key]; !exists {
			c.order = append(c.order, key)
		}
		c.values[key] = output
		c.owners[key] = step.ID
	}
	return nil
}

// Get returns the raw output stored at key.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key has been committed.
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Keys returns committed keys in commit order.
func (c *Context) Keys() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of committed keys.
func (c *Context) Len() int {
	return len(c.values)
}

// Snapshot returns a copy of every committed value.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Outputs returns a copy of the raw values.
func (c *Context) Outputs() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// templateData returns committed values in the form templates consume.
func (c *Context) templateData() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = template.Value(v)
	}
	return out
}

// Reset discards every committed value.
func (c *Context) Reset() {
	c.values = make(map[string]string)
	c.owners = make(map[string]string)
	c.order = nil
}
