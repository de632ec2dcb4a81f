//go:build debug

package execution

// strictInvariants turns self-healing into panics in debug builds.
const strictInvariants = true
