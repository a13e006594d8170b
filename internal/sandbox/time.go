package sandbox

import "time"

func nowFunc() time.Time { return time.Now() }
