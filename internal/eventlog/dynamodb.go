package eventlog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/retry"
)

// PutItemAPI is the subset of the DynamoDB client used here.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBLogger writes entries to a table whose key is city (hash) and
// timestamp (range).
type DynamoDBLogger struct {
	api    PutItemAPI
	table  string
	retry  retry.Policy
	logger *zap.Logger
}

// NewDynamoDB builds a DynamoDBLogger from cfg with SDK retries disabled.
func NewDynamoDB(cfg aws.Config, table string, policy retry.Policy, logger *zap.Logger) (*DynamoDBLogger, error) {
	api := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.Retryer = aws.NopRetryer{}
	})
	return NewDynamoDBWithAPI(api, table, policy, logger)
}

// NewDynamoDBWithAPI returns a DynamoDBLogger over an existing PutItem implementation.
func NewDynamoDBWithAPI(api PutItemAPI, table string, policy retry.Policy, logger *zap.Logger) (*DynamoDBLogger, error) {
	if table == "" {
		return nil, apperrors.Configuration("new dynamodb event log", fmt.Errorf("table name is required"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoDBLogger{api: api, table: table, retry: policy, logger: logger}, nil
}

// LogEvent implements Logger.
func (d *DynamoDBLogger) LogEvent(ctx context.Context, city, timestamp, objectURL string) error {
	logger := observability.LoggerFromContext(ctx, d.logger).With(
		zap.String("city", city),
		zap.String("table", d.table),
	)
	item := itemFor(models.LogEntry{City: city, Timestamp: timestamp, ObjectURL: objectURL})
	return write(ctx, BackendDynamoDB, d.retry, logger, func(ctx context.Context) error {
		_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.table),
			Item:      item,
		})
		return err
	})
}

func itemFor(e models.LogEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"city":      &types.AttributeValueMemberS{Value: e.City},
		"timestamp": &types.AttributeValueMemberS{Value: e.Timestamp},
		"s3_url":    &types.AttributeValueMemberS{Value: e.ObjectURL},
	}
}
