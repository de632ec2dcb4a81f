//go:build !debug

package execution

const strictInvariants = false
