package repo

import (
	"time"

	"github.com/soulra/clinical-router/internal/agent/model"
)

var (
	base      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	testScope = model.Scope{ConversationID: "conv-1"}
	pairScope = model.Scope{PatientID: "p-1", DoctorID: "d-1"}
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Set(t time.Time) { c.t = t }

// seedDaily appends one message per day for n days starting at base and
// leaves the clock one hour after the last message.
func seedDaily(c *clock, n int, appendFn func(i int)) {
	for i := 0; i < n; i++ {
		c.Set(base.Add(time.Duration(i) * 24 * time.Hour))
		appendFn(i)
	}
	c.Set(base.Add(time.Duration(n-1)*24*time.Hour + time.Hour))
}
