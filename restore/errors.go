package restore

import (
	"errors"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/looker"
)

// permanentError reports whether retrying an item cannot help.
func permanentError(err error) bool {
	var deser *codec.DeserializationError
	var dep *DependencyError
	if errors.As(err, &deser) || errors.As(err, &dep) {
		return true
	}
	return looker.Permanent(err)
}

// classifyError names the failure class for dead letter diagnostics.
func classifyError(err error) string {
	var deser *codec.DeserializationError
	if errors.As(err, &deser) {
		return "DeserializationError"
	}
	var dep *DependencyError
	if errors.As(err, &dep) {
		return "DependencyError"
	}
	return looker.ErrorType(err)
}
