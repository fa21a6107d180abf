package observability

import (
	"errors"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// AWSErrorFields returns log fields for the service error code and message in
// err's chain, if any.
func AWSErrorFields(err error) []zap.Field {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	return []zap.Field{
		zap.String("awsErrorCode", apiErr.ErrorCode()),
		zap.String("awsErrorMessage", apiErr.ErrorMessage()),
		zap.String("awsErrorFault", apiErr.ErrorFault().String()),
	}
}
