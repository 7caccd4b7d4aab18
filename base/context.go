package base

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Context ties a single decision of the daemon (an event, a timer expiry, a side effect) to an id
// that shows up in every log line it produces
type Context struct {
	UUID      uuid.UUID
	Reason    string
	GoContext context.Context
	logger    log.FieldLogger
}

// NewContext starts a decision that is not tied to the lifetime of the daemon
func NewContext(logger log.FieldLogger, reason string) *Context {
	return NewContextFrom(context.Background(), logger, reason)
}

// NewContextFrom creates a Context bound to a parent Go context, so cancellation of the daemon
// propagates into side effects started for this decision
func NewContextFrom(parent context.Context, logger log.FieldLogger, reason string) *Context {
	u := uuid.New()
	return &Context{UUID: u, logger: logger.WithField("uuid", u.String()), Reason: reason, GoContext: parent}
}

// WithTimeout returns a copy of the Context whose Go context expires after timeout
func WithTimeout(parentContext *Context, timeout time.Duration) (*Context, context.CancelFunc) {
	goCtx, cancel := context.WithTimeout(parentContext.GoContext, timeout)
	ctx := &Context{UUID: parentContext.UUID, logger: parentContext.logger, Reason: parentContext.Reason, GoContext: goCtx}
	return ctx, cancel
}

// WithField returns a child Context with a new id and an additional log field
func WithField(parentContext *Context, key string, value string) *Context {
	reason := key + ":" + value
	u := uuid.New()
	return &Context{UUID: u, logger: parentContext.logger.WithField(key, value).WithField("uuid", u.String()), Reason: reason, GoContext: parentContext.GoContext}
}

// GetID is the uuid that is logged with every line of this decision
func (c *Context) GetID() string {
	return c.UUID.String()
}

// GetReason names what started the decision, "session:N" for a timeout session
func (c *Context) GetReason() string {
	return c.Reason
}

// GetLogger carries the uuid field and any field added with WithField
func (c *Context) GetLogger() log.FieldLogger {
	return c.logger
}

// Done is closed when the underlying Go context is cancelled
func (c *Context) Done() <-chan struct{} {
	return c.GoContext.Done()
}
