// Package dynamo implements storage.RecordStore on a DynamoDB table keyed by song_id.
package dynamo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"ourchants/internal/metrics"
	"ourchants/internal/models"
	"ourchants/internal/storage"
)

// API is the subset of the DynamoDB client used by Store
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store is a DynamoDB-backed record store
type Store struct {
	api      API
	table    string
	pageSize int32
	metrics  *metrics.Metrics
}

// NewClient creates a DynamoDB client. endpoint overrides the resolved
// endpoint, for DynamoDB Local and similar.
func NewClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// New creates a Store on table. pageSize <= 0 leaves the scan page size to the service.
func New(api API, table string, pageSize int, m *metrics.Metrics) *Store {
	if pageSize < 0 {
		pageSize = 0
	}
	return &Store{api: api, table: table, pageSize: int32(pageSize), metrics: m}
}

func (s *Store) ScanPage(ctx context.Context, token string) (storage.ScanPage, error) {
	defer s.observe("scan", time.Now())

	input := &dynamodb.ScanInput{TableName: aws.String(s.table)}
	if s.pageSize > 0 {
		input.Limit = aws.Int32(s.pageSize)
	}
	if token != "" {
		input.ExclusiveStartKey = key(token)
	}

	out, err := s.api.Scan(ctx, input)
	if err != nil {
		return storage.ScanPage{}, storage.FromAWS("scan", err)
	}

	page := storage.ScanPage{Songs: make([]models.Song, 0, len(out.Items))}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &page.Songs); err != nil {
		return storage.ScanPage{}, storage.NewError("scan", storage.ErrBackend, errors.Wrap(err, "failed to decode scanned songs"))
	}

	if len(out.LastEvaluatedKey) > 0 {
		var last struct {
			SongID string `dynamodbav:"song_id"`
		}
		if err := attributevalue.UnmarshalMap(out.LastEvaluatedKey, &last); err != nil {
			return storage.ScanPage{}, storage.NewError("scan", storage.ErrBackend, errors.Wrap(err, "failed to decode scan continuation key"))
		}
		page.Next = last.SongID
	}
	return page, nil
}

func (s *Store) GetItem(ctx context.Context, songID string) (*models.Song, error) {
	defer s.observe("get", time.Now())

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key(songID),
	})
	if err != nil {
		return nil, storage.FromAWS("get", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decode("get", out.Item)
}

func (s *Store) PutItem(ctx context.Context, song models.Song) error {
	defer s.observe("put", time.Now())

	item, err := attributevalue.MarshalMap(song)
	if err != nil {
		return storage.NewError("put", storage.ErrBackend, errors.Wrap(err, "failed to encode song"))
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return storage.FromAWS("put", err)
}

// UpdateItem sets every assigned attribute in one call and returns the item
// as stored afterwards. Like any DynamoDB update it creates the item if absent.
func (s *Store) UpdateItem(ctx context.Context, songID string, set []models.Assignment) (*models.Song, error) {
	if len(set) == 0 {
		return s.GetItem(ctx, songID)
	}
	defer s.observe("update", time.Now())

	expr, err := UpdateExpression(set)
	if err != nil {
		return nil, storage.NewError("update", storage.ErrBackend, err)
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key(songID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, storage.FromAWS("update", err)
	}
	return decode("update", out.Attributes)
}

func (s *Store) DeleteItem(ctx context.Context, songID string) error {
	defer s.observe("delete", time.Now())

	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key(songID),
	})
	return storage.FromAWS("delete", err)
}

// Ping checks the table is reachable
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return storage.FromAWS("describe_table", err)
}

// UpdateExpression builds a SET expression with one clause per assignment.
// Attribute names are always placeholders, so reserved words such as date
// and version are safe.
func UpdateExpression(set []models.Assignment) (expression.Expression, error) {
	var update expression.UpdateBuilder
	for _, a := range set {
		if a.Field == models.FieldSongID {
			continue
		}
		value := a.Value
		if l, ok := value.(models.StringList); ok {
			value = []string(l)
		}
		update = update.Set(expression.Name(a.Field), expression.Value(value))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return expression.Expression{}, errors.Wrap(err, "failed to build update expression")
	}
	return expr, nil
}

func key(songID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		models.FieldSongID: &types.AttributeValueMemberS{Value: songID},
	}
}

func decode(op string, item map[string]types.AttributeValue) (*models.Song, error) {
	var song models.Song
	if err := attributevalue.UnmarshalMap(item, &song); err != nil {
		return nil, storage.NewError(op, storage.ErrBackend, errors.Wrap(err, "failed to decode song"))
	}
	return &song, nil
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.BackendDurationSeconds.WithLabelValues("dynamodb", op).Observe(time.Since(start).Seconds())
}
