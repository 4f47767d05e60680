package push

import (
	"errors"

	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// IsDeadToken reports whether a publish error means the token is permanently
// unusable. SNS disables an endpoint when the platform reports the token as
// unregistered (app uninstalled, token rotated), and deletes it entirely on
// cleanup. Either way the token will never deliver again and the device
// should be deactivated. Throttling, timeouts and auth failures are not dead
// tokens; those devices stay active and the send just fails.
func IsDeadToken(err error) bool {
	var disabled *snstypes.EndpointDisabledException
	if errors.As(err, &disabled) {
		return true
	}
	var notFound *snstypes.NotFoundException
	if errors.As(err, &notFound) {
		return true
	}
	var invalid *snstypes.InvalidParameterException
	if errors.As(err, &invalid) {
		// SNS reports a malformed or revoked token as an invalid Token
		// parameter on CreatePlatformEndpoint.
		return true
	}
	return false
}
