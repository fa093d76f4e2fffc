package playbook

import "time"

// nowFunc is overridden in tests for deterministic timestamps.
var nowFunc = time.Now
