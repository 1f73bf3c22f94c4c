package redis_tools

const keyInitialRefsPrefix = "orb:initial_refs:"

// KeyInitialRefs is the hash of name -> stringified IOR for one ORB.
func KeyInitialRefs(orbID string) string {
	return keyInitialRefsPrefix + orbID
}
