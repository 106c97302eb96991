package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UserNameIndex is the secondary index keyed by bare user id, used for
// system-context lookups that span tenants.
const UserNameIndex = "UserNameIndex"

// DynamoAPI is the subset of the DynamoDB client the stores depend on.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

// DynamoUserStore implements UserStore on a DynamoDB table with partition key
// tenant_id, sort key id, and the UserNameIndex global secondary index.
type DynamoUserStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoUserStore builds the user store and bootstraps its table when missing.
func NewDynamoUserStore(ctx context.Context, client DynamoAPI, table string) (*DynamoUserStore, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if table == "" {
		return nil, fmt.Errorf("user table name is required")
	}

	store := &DynamoUserStore{client: client, table: table}
	if err := ensureTable(ctx, client, userTableSchema(table)); err != nil {
		return nil, fmt.Errorf("bootstrap user table: %w", err)
	}
	return store, nil
}

func (s *DynamoUserStore) Get(ctx context.Context, tenantID, id string) (UserRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"tenant_id": &ddbtypes.AttributeValueMemberS{Value: tenantID},
			"id":        &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return UserRecord{}, fmt.Errorf("get user %q: %w", id, err)
	}
	if len(out.Item) == 0 {
		return UserRecord{}, ErrNotFound
	}

	var record UserRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return UserRecord{}, fmt.Errorf("unmarshal user %q: %w", id, err)
	}
	return record, nil
}

func (s *DynamoUserStore) QueryByID(ctx context.Context, id string) ([]UserRecord, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(UserNameIndex),
		KeyConditionExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query user index for %q: %w", id, err)
	}

	records := make([]UserRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var record UserRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("unmarshal user index item: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *DynamoUserStore) Put(ctx context.Context, record UserRecord) (UserRecord, error) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return UserRecord{}, fmt.Errorf("marshal user %q: %w", record.ID, err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return UserRecord{}, fmt.Errorf("put user %q: %w", record.ID, err)
	}
	return record, nil
}

func (s *DynamoUserStore) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"tenant_id": &ddbtypes.AttributeValueMemberS{Value: tenantID},
			"id":        &ddbtypes.AttributeValueMemberS{Value: id},
		},
	}); err != nil {
		return fmt.Errorf("delete user %q: %w", id, err)
	}
	return nil
}

// DynamoTenantStore implements TenantStore on a DynamoDB table keyed by id.
type DynamoTenantStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoTenantStore builds the tenant store and bootstraps its table when missing.
func NewDynamoTenantStore(ctx context.Context, client DynamoAPI, table string) (*DynamoTenantStore, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if table == "" {
		return nil, fmt.Errorf("tenant table name is required")
	}

	store := &DynamoTenantStore{client: client, table: table}
	if err := ensureTable(ctx, client, tenantTableSchema(table)); err != nil {
		return nil, fmt.Errorf("bootstrap tenant table: %w", err)
	}
	return store, nil
}

func (s *DynamoTenantStore) Put(ctx context.Context, record TenantRecord) (TenantRecord, error) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return TenantRecord{}, fmt.Errorf("marshal tenant %q: %w", record.ID, err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return TenantRecord{}, fmt.Errorf("put tenant %q: %w", record.ID, err)
	}
	return record, nil
}

func (s *DynamoTenantStore) ListWithInfrastructure(ctx context.Context) ([]TenantRecord, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("attribute_exists(UserPoolId)"),
	})
	if err != nil {
		return nil, fmt.Errorf("scan tenants: %w", err)
	}

	records := make([]TenantRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var record TenantRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("unmarshal tenant item: %w", err)
		}
		if record.HasInfrastructure() {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *DynamoTenantStore) Delete(ctx context.Context, id string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	}); err != nil {
		return fmt.Errorf("delete tenant %q: %w", id, err)
	}
	return nil
}

// DynamoTableAdmin implements TableAdmin against the live DynamoDB endpoint.
type DynamoTableAdmin struct {
	client DynamoAPI
}

// NewDynamoTableAdmin constructs a TableAdmin.
func NewDynamoTableAdmin(client DynamoAPI) *DynamoTableAdmin {
	return &DynamoTableAdmin{client: client}
}

func (a *DynamoTableAdmin) DeleteTable(ctx context.Context, name string) error {
	if _, err := a.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)}); err != nil {
		return fmt.Errorf("delete table %q: %w", name, err)
	}
	return nil
}

func ensureTable(ctx context.Context, client DynamoAPI, input *dynamodb.CreateTableInput) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName})
	if err == nil {
		return nil
	}

	var notFound *ddbtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table: %w", err)
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		var inUse *ddbtypes.ResourceInUseException
		if errors.As(err, &inUse) {
			// Lost a create race with another instance; the table exists.
			return nil
		}
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func userTableSchema(table string) *dynamodb.CreateTableInput {
	throughput := &ddbtypes.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(10),
		WriteCapacityUnits: aws.Int64(10),
	}

	return &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("tenant_id"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String("id"), KeyType: ddbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("tenant_id"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("id"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		ProvisionedThroughput: throughput,
		GlobalSecondaryIndexes: []ddbtypes.GlobalSecondaryIndex{
			{
				IndexName: aws.String(UserNameIndex),
				KeySchema: []ddbtypes.KeySchemaElement{
					{AttributeName: aws.String("id"), KeyType: ddbtypes.KeyTypeHash},
				},
				Projection: &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeAll},
				ProvisionedThroughput: &ddbtypes.ProvisionedThroughput{
					ReadCapacityUnits:  aws.Int64(10),
					WriteCapacityUnits: aws.Int64(10),
				},
			},
		},
	}
}

func tenantTableSchema(table string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: ddbtypes.KeyTypeHash},
		},
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		ProvisionedThroughput: &ddbtypes.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(10),
			WriteCapacityUnits: aws.Int64(10),
		},
	}
}
