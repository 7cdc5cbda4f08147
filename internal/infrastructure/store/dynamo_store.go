package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key attributes of the documents table. Document fields live alongside
// them as top-level attributes so UpdateItem can do arithmetic on them.
const (
	dynamoPartitionKey = "pk"
	dynamoSortKey      = "sk"
)

// DynamoStore keeps every collection in one table partitioned by collection
// name. Subscriptions are served in-process.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
	feed      *Feed
}

func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		feed:      NewFeed(),
	}
}

func dynamoKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoPartitionKey: &types.AttributeValueMemberS{Value: collection},
		dynamoSortKey:      &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func decodeDynamoItem(item map[string]types.AttributeValue) (Document, error) {
	var doc Document
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	delete(doc, dynamoPartitionKey)
	delete(doc, dynamoSortKey)
	return doc, nil
}

// Get loads one document with a consistent read
func (ds *DynamoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	out, err := ds.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.tableName),
		Key:            dynamoKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, Remote("get", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return decodeDynamoItem(out.Item)
}

// Set replaces the whole item
func (ds *DynamoStore) Set(ctx context.Context, collection, id string, doc Document) error {
	normalized, err := Clone(doc)
	if err != nil {
		return err
	}
	if normalized == nil {
		normalized = Document{}
	}
	av, err := attributevalue.MarshalMap(normalized)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	for k, v := range dynamoKey(collection, id) {
		av[k] = v
	}

	if _, err := ds.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ds.tableName),
		Item:      av,
	}); err != nil {
		return Remote("set", err)
	}
	ds.publish(ctx, collection, id)
	return nil
}

// Update sets each field on an existing item
func (ds *DynamoStore) Update(ctx context.Context, collection, id string, fields Document) error {
	normalized, err := Clone(fields)
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return nil
	}

	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	sets := make([]string, 0, len(keys))
	for i, k := range keys {
		av, err := attributevalue.Marshal(normalized[k])
		if err != nil {
			return fmt.Errorf("failed to marshal field %s: %w", k, err)
		}
		name := fmt.Sprintf("#f%d", i)
		value := fmt.Sprintf(":v%d", i)
		names[name] = k
		values[value] = av
		sets = append(sets, name+" = "+value)
	}
	names["#pk"] = dynamoPartitionKey

	_, err = ds.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(ds.tableName),
		Key:                       dynamoKey(collection, id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	if err != nil {
		return Remote("update", err)
	}
	ds.publish(ctx, collection, id)
	return nil
}

// AtomicAdjust relies on a condition expression to refuse decrements past zero
func (ds *DynamoStore) AtomicAdjust(ctx context.Context, collection, id, field string, delta int) (int, error) {
	condition := "attribute_exists(#pk)"
	values := map[string]types.AttributeValue{
		":delta": &types.AttributeValueMemberN{Value: fmt.Sprint(delta)},
		":zero":  &types.AttributeValueMemberN{Value: "0"},
	}
	if delta < 0 {
		condition += " AND #f >= :need"
		values[":need"] = &types.AttributeValueMemberN{Value: fmt.Sprint(-delta)}
	}

	out, err := ds.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(ds.tableName),
		Key:                 dynamoKey(collection, id),
		UpdateExpression:    aws.String("SET #f = if_not_exists(#f, :zero) + :delta"),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeNames: map[string]string{
			"#f":  field,
			"#pk": dynamoPartitionKey,
		},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		if _, getErr := ds.Get(ctx, collection, id); errors.Is(getErr, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficient
	}
	if err != nil {
		return 0, Remote("adjust", err)
	}

	var value int
	if err := attributevalue.Unmarshal(out.Attributes[field], &value); err != nil {
		return 0, fmt.Errorf("failed to read adjusted value: %w", err)
	}
	ds.publish(ctx, collection, id)
	return value, nil
}

// Delete removes the item
func (ds *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := ds.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(ds.tableName),
		Key:       dynamoKey(collection, id),
	}); err != nil {
		return Remote("delete", err)
	}
	ds.feed.Publish(collection, id, nil)
	return nil
}

// Take asks DeleteItem for the old image
func (ds *DynamoStore) Take(ctx context.Context, collection, id string) (Document, error) {
	out, err := ds.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(ds.tableName),
		Key:          dynamoKey(collection, id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, Remote("take", err)
	}
	if len(out.Attributes) == 0 {
		return nil, ErrNotFound
	}
	ds.feed.Publish(collection, id, nil)
	return decodeDynamoItem(out.Attributes)
}

// Query reads the collection partition and filters in memory
func (ds *DynamoStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(ds.client, &dynamodb.QueryInput{
		TableName:              aws.String(ds.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": dynamoPartitionKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
		},
	})

	var docs []Document
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, Remote("query", err)
		}
		for _, item := range page.Items {
			doc, err := decodeDynamoItem(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return q.Apply(docs), nil
}

// Subscribe delivers the current item and every change made through this store
func (ds *DynamoStore) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (func(), error) {
	initial, err := ds.Get(ctx, collection, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return ds.feed.Subscribe(collection, id, initial, fn), nil
}

func (ds *DynamoStore) publish(ctx context.Context, collection, id string) {
	doc, err := ds.Get(ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		ds.feed.Publish(collection, id, nil)
		return
	}
	if err != nil {
		return
	}
	ds.feed.Publish(collection, id, doc)
}
