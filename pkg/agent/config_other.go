//go:build !linux

package agent

func localIPAssigned(string) bool {
	return true
}
