package journal

import "github.com/OCAP2/touchfly/pkg/core"

// Discard drops every record.
type Discard struct{}

func (Discard) Init() error                             { return nil }
func (Discard) Close() error                            { return nil }
func (Discard) SessionStarted(core.SessionRecord) error { return nil }
func (Discard) SessionEnded(core.SessionRecord) error   { return nil }
