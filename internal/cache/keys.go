package cache

import "fmt"

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// StateKey namespaces a persisted state entry by owner.
func StateKey(owner, name string) string {
	return fmt.Sprintf("state:%s:%s", owner, name)
}

// FlowLockKey guards the single in-flight prediction flow of an owner.
func FlowLockKey(owner string) string {
	return fmt.Sprintf("flow:%s", owner)
}
