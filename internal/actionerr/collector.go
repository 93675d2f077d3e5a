package actionerr

import (
	"strings"

	"github.com/bazaar-mp/project/internal/contracts"
	"go.uber.org/multierr"
)

// Collector gathers every missing or invalid field of one action so the
// caller sees them all at once.
type Collector struct {
	Action contracts.ActionType
	errs   error
}

func NewCollector(action contracts.ActionType) *Collector {
	return &Collector{Action: action}
}

func (c *Collector) Require(field, value string) {
	if strings.TrimSpace(value) == "" {
		c.errs = multierr.Append(c.errs, MissingParam(c.Action, field))
	}
}

func (c *Collector) RequireLen(field string, n int) {
	if n == 0 {
		c.errs = multierr.Append(c.errs, MissingParam(c.Action, field))
	}
}

func (c *Collector) Invalid(field, format string, args ...any) {
	c.errs = multierr.Append(c.errs, InvalidParam(c.Action, field, format, args...))
}

func (c *Collector) Add(err error) {
	c.errs = multierr.Append(c.errs, err)
}

func (c *Collector) Err() error { return c.errs }
